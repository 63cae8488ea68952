// Package authz holds the role/module/action policy: the permission store, the module
// catalog and the decision engine.
package authz

// Action verbs gated per module.
const (
	ActionCreate = "Create"
	ActionRead   = "Read"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

// Actions lists every known verb in display order.
func Actions() []string {
	return []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// IsMutation reports whether the action changes data.
func IsMutation(action string) bool {
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Rule is one (role, module, action) tuple of the permission table.
type Rule struct {
	Role    string `json:"role" yaml:"role" validate:"required,max=64"`
	Module  string `json:"module" yaml:"module" validate:"required,max=64"`
	Action  string `json:"action" yaml:"action" validate:"required,oneof=Create Read Update Delete"`
	Allowed bool   `json:"allowed" yaml:"allowed"`
}

// Matrix maps role -> module -> action for allowed rules only.
type Matrix map[string]map[string]map[string]bool

// Allows reports whether the matrix holds an allowed tuple.
func (m Matrix) Allows(role, module, action string) bool {
	return m[role][module][action]
}

func (m Matrix) set(role, module, action string) {
	modules, ok := m[role]
	if !ok {
		modules = make(map[string]map[string]bool)
		m[role] = modules
	}
	actions, ok := modules[module]
	if !ok {
		actions = make(map[string]bool)
		modules[module] = actions
	}
	actions[action] = true
}

// Decision is the outcome of a policy check.
type Decision int

const (
	// Deny is the zero value so an unset decision never grants access.
	Deny Decision = iota
	Allow
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}
