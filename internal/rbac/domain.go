package rbac

import (
	"context"

	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Authorizer answers whether a principal may perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, principal shared.Principal, module, action string) error
}

// RuleStore is the permission table as seen by the administration screens.
type RuleStore interface {
	ReadFullMatrix(ctx context.Context) (authz.Matrix, error)
	UpsertBatch(ctx context.Context, rules []authz.Rule) authz.BatchResult
	Catalog() *authz.Catalog
}

// MatrixView is the permissions screen payload.
type MatrixView struct {
	SuperRole string             `json:"super_role"`
	Modules   []authz.ModuleSpec `json:"modules"`
	Roles     []string           `json:"roles"`
	Grants    authz.Matrix       `json:"grants"`
}

// SaveRequest is a batch of rules submitted from the matrix editor.
type SaveRequest struct {
	Rules []authz.Rule `json:"rules"`
}
