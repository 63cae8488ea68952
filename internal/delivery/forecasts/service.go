// Package forecasts manages delivery forecasts (Previsoes). Reads require
// Previsoes/Read; every write is routed through the mutation gateway.
package forecasts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/mutation"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// ErrStatusTransition is returned when a cancelled forecast is changed again.
var ErrStatusTransition = fmt.Errorf("%w: cancelled forecasts cannot change status", shared.ErrValidation)

const maxWindow = 92 * 24 * time.Hour

// Gateway is the guarded mutation entry point.
type Gateway interface {
	Execute(ctx context.Context, principal shared.Principal, module, action string, write mutation.WriteFunc) (mutation.Result, error)
	Authorize(ctx context.Context, principal shared.Principal, module, action string) error
}

// Service provides forecast operations.
type Service struct {
	db       DBTX
	gateway  Gateway
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(db DBTX, gateway Gateway) *Service {
	return &Service{db: db, gateway: gateway, validate: validator.New(), now: time.Now}
}

// Get returns one forecast.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id int64) (Forecast, error) {
	if err := s.gateway.Authorize(ctx, principal, shared.ModuleForecasts, authz.ActionRead); err != nil {
		return Forecast{}, err
	}
	f, err := getForecast(ctx, s.db, id)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Forecast{}, fmt.Errorf("forecasts: get: %w", err)
	}
	return f, err
}

// List returns forecasts scheduled inside the window. A zero window means
// the next 14 days.
func (s *Service) List(ctx context.Context, principal shared.Principal, w Window) ([]Forecast, error) {
	if err := s.gateway.Authorize(ctx, principal, shared.ModuleForecasts, authz.ActionRead); err != nil {
		return nil, err
	}
	if w.From.IsZero() {
		w.From = truncateDay(s.now())
	}
	if w.To.IsZero() {
		w.To = w.From.AddDate(0, 0, 14)
	}
	if w.To.Before(w.From) {
		return nil, fmt.Errorf("%w: window end precedes start", shared.ErrValidation)
	}
	if w.To.Sub(w.From) > maxWindow {
		return nil, fmt.Errorf("%w: window exceeds 92 days", shared.ErrValidation)
	}
	out, err := listForecasts(ctx, s.db, w)
	if err != nil {
		return nil, fmt.Errorf("forecasts: list: %w", err)
	}
	return out, nil
}

// Create schedules a forecast in PLANNED status unless the input sets one.
func (s *Service) Create(ctx context.Context, principal shared.Principal, in Input) (Forecast, error) {
	var created Forecast
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleForecasts, authz.ActionCreate, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		f, err := s.build(ctx, tx, in, Forecast{Status: StatusPlanned})
		if err != nil {
			return mutation.Change{}, err
		}
		created, err = insertForecast(ctx, tx, f)
		if err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: created.ID, After: created}, nil
	})
	if err != nil {
		return Forecast{}, err
	}
	return created, nil
}

// Update rewrites a forecast.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id int64, in Input) (Forecast, error) {
	var updated Forecast
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleForecasts, authz.ActionUpdate, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		before, err := lockForecast(ctx, tx, id)
		if err != nil {
			return mutation.Change{}, err
		}
		f, err := s.build(ctx, tx, in, before)
		if err != nil {
			return mutation.Change{}, err
		}
		if before.Status == StatusCancelled && f.Status != StatusCancelled {
			return mutation.Change{}, ErrStatusTransition
		}
		if f.sameFields(before) {
			return mutation.Change{}, audit.ErrNoChange
		}
		updated, err = updateForecast(ctx, tx, f)
		if err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: id, Before: before, After: updated}, nil
	})
	if err != nil {
		return Forecast{}, err
	}
	return updated, nil
}

// Delete removes a forecast.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id int64) error {
	_, err := s.gateway.Execute(ctx, principal, shared.ModuleForecasts, authz.ActionDelete, func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
		before, err := lockForecast(ctx, tx, id)
		if err != nil {
			return mutation.Change{}, err
		}
		if err := deleteForecast(ctx, tx, id); err != nil {
			return mutation.Change{}, err
		}
		return mutation.Change{Table: Table, RecordID: id, Before: before}, nil
	})
	return err
}

// build validates in and merges it over base.
func (s *Service) build(ctx context.Context, tx DBTX, in Input, base Forecast) (Forecast, error) {
	in.VehiclePlate = strings.ToUpper(strings.TrimSpace(in.VehiclePlate))
	in.ScheduledFor = strings.TrimSpace(in.ScheduledFor)
	in.Route = strings.TrimSpace(in.Route)
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	in.Notes = strings.TrimSpace(in.Notes)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Forecast{}, fmt.Errorf("%w: %s is invalid", shared.ErrValidation, strings.ToLower(verrs[0].Field()))
		}
		return Forecast{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	day, err := time.Parse(dateLayout, in.ScheduledFor)
	if err != nil {
		return Forecast{}, fmt.Errorf("%w: scheduledfor is invalid", shared.ErrValidation)
	}
	ok, err := partyExists(ctx, tx, in.PartyID)
	if err != nil {
		return Forecast{}, err
	}
	if !ok {
		return Forecast{}, fmt.Errorf("%w: party %d does not exist", shared.ErrValidation, in.PartyID)
	}

	f := base
	f.PartyID = in.PartyID
	f.VehiclePlate = in.VehiclePlate
	f.ScheduledFor = day
	f.Route = in.Route
	f.Quantity = in.Quantity
	f.Notes = in.Notes
	if in.Status != "" {
		f.Status = in.Status
	}
	return f, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
