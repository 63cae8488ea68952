package authz

import (
	"context"
	"log/slog"
	"strings"
)

// RuleLookup is the point-read side of the permission store.
type RuleLookup interface {
	Lookup(ctx context.Context, role, module, action string) (allowed bool, found bool, err error)
}

// DecisionObserver receives every non-bypass decision, typically for metrics.
type DecisionObserver interface {
	ObserveDecision(module, action string, allowed bool)
}

// Engine decides (role, module, action) requests. It is safe for concurrent use.
type Engine struct {
	rules     RuleLookup
	superRole map[string]struct{}
	logger    *slog.Logger
	observer  DecisionObserver
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a decision observer.
func WithObserver(o DecisionObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithSuperRoleAliases registers additional labels treated as the super-role.
func WithSuperRoleAliases(aliases ...string) EngineOption {
	return func(e *Engine) {
		for _, a := range aliases {
			if a = strings.TrimSpace(a); a != "" {
				e.superRole[a] = struct{}{}
			}
		}
	}
}

// NewEngine builds an Engine. superRole is exempt from lookup and always allowed.
func NewEngine(rules RuleLookup, superRole string, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:     rules,
		superRole: make(map[string]struct{}, 1),
		logger:    slog.Default(),
	}
	if superRole = strings.TrimSpace(superRole); superRole != "" {
		e.superRole[superRole] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsSuperRole reports whether role bypasses the permission table.
func (e *Engine) IsSuperRole(role string) bool {
	_, ok := e.superRole[strings.TrimSpace(role)]
	return ok
}

// Decide returns Allow only for the super-role or a stored rule with allowed = true.
// A missing rule, an explicit false and a store failure all yield Deny.
func (e *Engine) Decide(ctx context.Context, role, module, action string) (decision Decision) {
	role = strings.TrimSpace(role)
	module = strings.TrimSpace(module)
	action = strings.TrimSpace(action)

	if e.IsSuperRole(role) {
		return Allow
	}
	if role == "" || module == "" || action == "" || e.rules == nil {
		e.observe(module, action, false)
		return Deny
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authz lookup panicked, denying", slog.Any("panic", r))
			decision = Deny
		}
	}()

	allowed, found, err := e.rules.Lookup(ctx, role, module, action)
	if err != nil {
		e.logger.Warn("authz lookup failed, denying",
			slog.String("role", role),
			slog.String("module", module),
			slog.String("action", action),
			slog.Any("error", err))
		e.observe(module, action, false)
		return Deny
	}
	decision = Deny
	if found && allowed {
		decision = Allow
	}
	e.observe(module, action, decision.Allowed())
	return decision
}

func (e *Engine) observe(module, action string, allowed bool) {
	if e.observer != nil {
		e.observer.ObserveDecision(module, action, allowed)
	}
}
