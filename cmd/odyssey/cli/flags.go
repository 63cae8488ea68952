package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// ParseCheckFlags reads `authz check` flags.
func ParseCheckFlags(args []string, stderr io.Writer) (CheckOptions, error) {
	var opts CheckOptions
	fs := pflag.NewFlagSet("authz check", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Role, "role", "", "role to evaluate")
	fs.StringVar(&opts.Module, "module", "", "module name, e.g. Previsoes")
	fs.StringVar(&opts.Action, "action", "", "one of Create, Read, Update, Delete")
	fs.BoolVar(&opts.JSONOutput, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return CheckOptions{}, err
	}
	if fs.NArg() > 0 {
		return CheckOptions{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

// ParseCatalogFlags reads `authz catalog` flags.
func ParseCatalogFlags(args []string, stderr io.Writer) (CatalogOptions, error) {
	var opts CatalogOptions
	fs := pflag.NewFlagSet("authz catalog", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Path, "file", "", "catalog YAML file (default: embedded)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return CatalogOptions{}, err
	}
	if fs.NArg() > 0 {
		return CatalogOptions{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

// ErrUnknownCommand is returned for unrecognised subcommands.
var ErrUnknownCommand = errors.New("unknown command")

// Run dispatches `authz <check|catalog>`. newCLI is only invoked for commands
// that need the policy engine, so catalog validation works offline.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, newCLI func(context.Context) (*AuthzCLI, func(), error)) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: odyssey authz <check|catalog> [flags]")
		return ExitError
	}
	switch args[0] {
	case "catalog":
		opts, err := ParseCatalogFlags(args[1:], stderr)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "authz catalog: %v\n", err)
			return ExitError
		}
		opts.Stdout, opts.Stderr = stdout, stderr
		return ValidateCatalogCommand(opts)
	case "check":
		opts, err := ParseCheckFlags(args[1:], stderr)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "authz check: %v\n", err)
			return ExitError
		}
		c, closeFn, err := newCLI(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "authz check: %v\n", err)
			return ExitError
		}
		defer closeFn()
		opts.Stdout, opts.Stderr = stdout, stderr
		return c.CheckCommand(ctx, opts)
	}
	_, _ = fmt.Fprintf(stderr, "authz: %v: %s\n", ErrUnknownCommand, args[0])
	return ExitError
}
