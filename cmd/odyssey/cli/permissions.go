package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
)

// Decider evaluates one policy question.
type Decider interface {
	Decide(ctx context.Context, role, module, action string) authz.Decision
}

// Exit codes shared by the authz commands.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitDenied = 10
)

// AuthzCLI offers operational helpers around the permission table.
type AuthzCLI struct {
	decider Decider
	catalog *authz.Catalog
}

// NewAuthzCLI constructs a new helper instance.
func NewAuthzCLI(decider Decider, catalog *authz.Catalog) (*AuthzCLI, error) {
	if catalog == nil {
		return nil, fmt.Errorf("cli: catalog required")
	}
	return &AuthzCLI{decider: decider, catalog: catalog}, nil
}

// CheckOptions defines available flags for the authz check command.
type CheckOptions struct {
	Role       string
	Module     string
	Action     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckSummary describes the JSON response for authz check.
type CheckSummary struct {
	Role     string `json:"role"`
	Module   string `json:"module"`
	Action   string `json:"action"`
	Decision string `json:"decision"`
	Known    bool   `json:"known"`
}

// CheckCommand answers whether role may perform action on module. It exits
// with ExitDenied on a deny so shell scripts can branch on it.
func (c *AuthzCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	role := strings.TrimSpace(opts.Role)
	module := strings.TrimSpace(opts.Module)
	action := strings.TrimSpace(opts.Action)
	if role == "" || module == "" || action == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "authz check: --role, --module and --action are required")
		return ExitError
	}
	if c.decider == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "authz check: policy engine not configured")
		return ExitError
	}
	decision := c.decider.Decide(ctx, role, module, action)
	summary := CheckSummary{
		Role:     role,
		Module:   module,
		Action:   action,
		Decision: decision.String(),
		Known:    c.catalog.Has(module, action),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "authz check: encode json: %v\n", err)
			return ExitError
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s %s/%s: %s\n", role, module, action, strings.ToUpper(summary.Decision))
		if !summary.Known {
			_, _ = fmt.Fprintf(opts.Stdout, "warning: %s/%s is not in the module catalog\n", module, action)
		}
	}
	if !decision.Allowed() {
		return ExitDenied
	}
	return ExitOK
}
