package parties

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/mutation"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Gateway is the guarded mutation entry point.
type Gateway interface {
	Execute(ctx context.Context, principal shared.Principal, module, action string, write mutation.WriteFunc) (mutation.Result, error)
	Authorize(ctx context.Context, principal shared.Principal, module, action string) error
}

// Service provides party operations. Every call is gated on the Parties module.
type Service struct {
	db       DBTX
	gateway  Gateway
	repo     repository
	validate *validator.Validate
}

// NewService constructs a Service. db serves reads; writes go through gateway.
func NewService(db DBTX, gateway Gateway) *Service {
	return &Service{db: db, gateway: gateway, validate: validator.New()}
}

// Get returns one party.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Party, error) {
	if err := s.gateway.Authorize(ctx, principal, shared.ModuleParties, authz.ActionRead); err != nil {
		return Party{}, err
	}
	p, err := s.repo.get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Party{}, err
		}
		return Party{}, fmt.Errorf("parties: get: %w", err)
	}
	return p, nil
}

// List returns a page of parties ordered by name.
func (s *Service) List(ctx context.Context, principal shared.Principal, filters ListFilters) ([]Party, error) {
	if err := s.gateway.Authorize(ctx, principal, shared.ModuleParties, authz.ActionRead); err != nil {
		return nil, err
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}
	filters.Search = strings.TrimSpace(filters.Search)
	out, err := s.repo.list(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("parties: list: %w", err)
	}
	return out, nil
}

// Create inserts a party and records its audit event.
func (s *Service) Create(ctx context.Context, principal shared.Principal, in Input) (Party, error) {
	var created Party
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleParties, authz.ActionCreate, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		cleaned, err := s.clean(in)
		if err != nil {
			return mutation.Change{}, err
		}
		created, err = s.repo.insert(ctx, tx, cleaned.apply(Party{}))
		if err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: created.ID, After: created}, nil
	})
	if err != nil {
		return Party{}, err
	}
	return created, nil
}

// Update rewrites a party's editable fields.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id int64, in Input) (Party, error) {
	var updated Party
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleParties, authz.ActionUpdate, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		cleaned, err := s.clean(in)
		if err != nil {
			return mutation.Change{}, err
		}
		before, err := s.repo.lock(ctx, tx, id)
		if err != nil {
			return mutation.Change{}, err
		}
		next := cleaned.apply(before)
		if next == before {
			return mutation.Change{}, audit.ErrNoChange
		}
		updated, err = s.repo.update(ctx, tx, next)
		if err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: id, Before: before, After: updated}, nil
	})
	if err != nil {
		return Party{}, err
	}
	return updated, nil
}

// Delete removes a party. The prior state is captured for the audit row.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id int64) error {
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleParties, authz.ActionDelete, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		before, err := s.repo.lock(ctx, tx, id)
		if err != nil {
			return mutation.Change{}, err
		}
		if err := s.repo.delete(ctx, tx, id); err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: id, Before: before}, nil
	})
	return err
}

func (s *Service) clean(in Input) (Input, error) {
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	in.Name = strings.TrimSpace(in.Name)
	in.TaxID = strings.TrimSpace(in.TaxID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return in, fmt.Errorf("%w: %s is invalid", shared.ErrValidation, strings.ToLower(verrs[0].Field()))
		}
		return in, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return in, nil
}
