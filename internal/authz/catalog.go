package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ModuleSpec declares one protected module.
type ModuleSpec struct {
	Name    string   `yaml:"name" json:"name"`
	Actions []string `yaml:"actions" json:"actions"`
}

type defaultGrant struct {
	Role    string   `yaml:"role"`
	Module  string   `yaml:"module"`
	Actions []string `yaml:"actions"`
}

type catalogFile struct {
	Modules  []ModuleSpec   `yaml:"modules"`
	Defaults []defaultGrant `yaml:"defaults"`
}

// Catalog is the set of known modules and their actions. It guards the administration
// boundary so typos never become permanently denied rules.
type Catalog struct {
	modules  []ModuleSpec
	index    map[string]map[string]struct{}
	defaults []Rule
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, falling back to the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("authz: parse catalog: %w", err)
	}
	c := &Catalog{index: make(map[string]map[string]struct{}, len(file.Modules))}
	for _, m := range file.Modules {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return nil, fmt.Errorf("authz: catalog module without name")
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("authz: catalog module %q declared twice", name)
		}
		actions := make(map[string]struct{}, len(m.Actions))
		for _, a := range m.Actions {
			if !isKnownAction(a) {
				return nil, fmt.Errorf("authz: catalog module %q: unknown action %q", name, a)
			}
			actions[a] = struct{}{}
		}
		c.index[name] = actions
		c.modules = append(c.modules, ModuleSpec{Name: name, Actions: orderedActions(actions)})
	}
	for _, d := range file.Defaults {
		for _, a := range d.Actions {
			rule := Rule{Role: strings.TrimSpace(d.Role), Module: strings.TrimSpace(d.Module), Action: a, Allowed: true}
			if err := c.Validate(rule); err != nil {
				return nil, fmt.Errorf("authz: catalog default: %w", err)
			}
			c.defaults = append(c.defaults, rule)
		}
	}
	sort.Slice(c.modules, func(i, j int) bool { return c.modules[i].Name < c.modules[j].Name })
	return c, nil
}

// Modules returns the declared modules sorted by name.
func (c *Catalog) Modules() []ModuleSpec {
	out := make([]ModuleSpec, len(c.modules))
	copy(out, c.modules)
	return out
}

// Has reports whether module exposes action.
func (c *Catalog) Has(module, action string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[module][action]
	return ok
}

// Validate checks that the rule names a known module/action pair.
func (c *Catalog) Validate(r Rule) error {
	if r.Role == "" || r.Module == "" || r.Action == "" {
		return fmt.Errorf("%w: role, module and action are required", shared.ErrValidation)
	}
	if _, ok := c.index[r.Module]; !ok {
		return fmt.Errorf("%w: unknown module %q", shared.ErrValidation, r.Module)
	}
	if !c.Has(r.Module, r.Action) {
		return fmt.Errorf("%w: module %q does not expose action %q", shared.ErrValidation, r.Module, r.Action)
	}
	return nil
}

// DefaultRules returns the grants declared under defaults.
func (c *Catalog) DefaultRules() []Rule {
	out := make([]Rule, len(c.defaults))
	copy(out, c.defaults)
	return out
}

func isKnownAction(a string) bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

func orderedActions(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, a := range Actions() {
		if _, ok := set[a]; ok {
			out = append(out, a)
		}
	}
	return out
}
