package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
)

// CatalogOptions defines available flags for the catalog validate command.
type CatalogOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CatalogSummary describes the JSON response for catalog validate.
type CatalogSummary struct {
	OK       bool               `json:"ok"`
	Modules  []authz.ModuleSpec `json:"modules"`
	Defaults int                `json:"defaults"`
}

// ValidateCatalogCommand parses a catalog file and reports its modules.
// An empty path validates the embedded catalog.
func ValidateCatalogCommand(opts CatalogOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	var (
		catalog *authz.Catalog
		err     error
	)
	if path := strings.TrimSpace(opts.Path); path != "" {
		catalog, err = authz.LoadCatalog(path)
	} else {
		catalog, err = authz.DefaultCatalog()
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "catalog validate: %v\n", err)
		return ExitError
	}
	summary := CatalogSummary{OK: true, Modules: catalog.Modules(), Defaults: len(catalog.DefaultRules())}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "catalog validate: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	for _, m := range summary.Modules {
		_, _ = fmt.Fprintf(opts.Stdout, "%-14s %s\n", m.Name, strings.Join(m.Actions, ","))
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%d modules, %d default grants\n", len(summary.Modules), summary.Defaults)
	return ExitOK
}
