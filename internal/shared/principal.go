package shared

import (
	"context"
	"strings"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID            int64
	Role          string
	SourceAddress string
}

// Authenticated reports whether the principal carries a real identity.
func (p Principal) Authenticated() bool {
	return p.ID > 0 && strings.TrimSpace(p.Role) != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context. Only the HTTP layer reads it back;
// core components receive the principal as an explicit argument.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || p == nil {
		return Principal{}, false
	}
	return *p, true
}
