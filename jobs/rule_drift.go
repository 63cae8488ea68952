package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	jobmetrics "github.com/odyssey-erp/odyssey-fleet/internal/jobs"
)

// MatrixReader is the read side of the permission store.
type MatrixReader interface {
	ReadFullMatrix(ctx context.Context) (authz.Matrix, error)
}

// Drift is a stored grant the catalog no longer knows about. Such rows still
// allow access, so they are reported for an administrator to revoke.
type Drift struct {
	Role   string
	Module string
	Action string
}

// RuleDriftJob scans allowed rules for modules or actions missing from the catalog.
type RuleDriftJob struct {
	store   MatrixReader
	catalog *authz.Catalog
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewRuleDriftJob constructs the job.
func NewRuleDriftJob(store MatrixReader, catalog *authz.Catalog, logger *slog.Logger, metrics *jobmetrics.Metrics) *RuleDriftJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleDriftJob{store: store, catalog: catalog, logger: logger, metrics: metrics}
}

// Handle processes TaskRuleDriftScan tasks.
func (j *RuleDriftJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RuleDriftPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode drift payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.metrics.Track("rule_drift_scan")
	drifts, err := j.Scan(ctx, payload.Role)
	if err != nil {
		return tracker.End(err)
	}
	for _, d := range drifts {
		j.logger.Warn("permission rule outside catalog",
			slog.String("role", d.Role),
			slog.String("module", d.Module),
			slog.String("action", d.Action))
	}
	j.metrics.SetRuleDrift(len(drifts))
	j.logger.Info("rule drift scan complete", slog.Int("drift", len(drifts)))
	return tracker.End(nil)
}

// Scan returns the drifted grants, sorted by role, module and action.
func (j *RuleDriftJob) Scan(ctx context.Context, role string) ([]Drift, error) {
	if j.store == nil || j.catalog == nil {
		return nil, fmt.Errorf("jobs: rule drift scan not configured")
	}
	matrix, err := j.store.ReadFullMatrix(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: read matrix: %w", err)
	}
	var out []Drift
	for r, modules := range matrix {
		if role != "" && r != role {
			continue
		}
		for module, actions := range modules {
			for action, allowed := range actions {
				if allowed && !j.catalog.Has(module, action) {
					out = append(out, Drift{Role: r, Module: module, Action: action})
				}
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Role != out[b].Role {
			return out[a].Role < out[b].Role
		}
		if out[a].Module != out[b].Module {
			return out[a].Module < out[b].Module
		}
		return out[a].Action < out[b].Action
	})
	return out, nil
}
