package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// maxBatch bounds one save request.
const maxBatch = 500

// Service backs the permission administration endpoints.
type Service struct {
	store     RuleStore
	authz     Authorizer
	superRole string
	logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(store RuleStore, authorizer Authorizer, superRole string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, authz: authorizer, superRole: superRole, logger: logger}
}

// Matrix returns every allowed rule together with the module catalog.
func (s *Service) Matrix(ctx context.Context, principal shared.Principal) (MatrixView, error) {
	if err := s.authz.Authorize(ctx, principal, shared.ModulePermissions, authz.ActionRead); err != nil {
		return MatrixView{}, err
	}
	grants, err := s.store.ReadFullMatrix(ctx)
	if err != nil {
		return MatrixView{}, fmt.Errorf("rbac: matrix: %w", err)
	}
	roles := make([]string, 0, len(grants))
	for role := range grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return MatrixView{
		SuperRole: s.superRole,
		Modules:   s.store.Catalog().Modules(),
		Roles:     roles,
		Grants:    grants,
	}, nil
}

// Catalog lists the known modules and their actions.
func (s *Service) Catalog(ctx context.Context, principal shared.Principal) ([]authz.ModuleSpec, error) {
	if err := s.authz.Authorize(ctx, principal, shared.ModulePermissions, authz.ActionRead); err != nil {
		return nil, err
	}
	return s.store.Catalog().Modules(), nil
}

// Save applies a batch of rules. Rows are independent; the result reports
// how many were written and why the others were rejected.
func (s *Service) Save(ctx context.Context, principal shared.Principal, req SaveRequest) (authz.BatchResult, error) {
	if err := s.authz.Authorize(ctx, principal, shared.ModulePermissions, authz.ActionUpdate); err != nil {
		return authz.BatchResult{}, err
	}
	if len(req.Rules) == 0 {
		return authz.BatchResult{}, fmt.Errorf("%w: no rules submitted", shared.ErrValidation)
	}
	if len(req.Rules) > maxBatch {
		return authz.BatchResult{}, fmt.Errorf("%w: at most %d rules per request", shared.ErrValidation, maxBatch)
	}
	result := s.store.UpsertBatch(ctx, req.Rules)
	s.logger.Info("permission rules saved",
		slog.Int64("actor_id", principal.ID),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
