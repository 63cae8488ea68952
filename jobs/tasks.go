package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRuleDriftScan compares stored permission grants with the module catalog.
	TaskRuleDriftScan = "authz:rule_drift_scan"
)

// RuleDriftPayload scopes one drift scan. An empty role scans every role.
type RuleDriftPayload struct {
	Role string `json:"role,omitempty"`
}

// NewRuleDriftScanTask constructs an Asynq task for the drift scan.
func NewRuleDriftScanTask(role string) (*asynq.Task, error) {
	data, err := json.Marshal(RuleDriftPayload{Role: role})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal drift payload: %w", err)
	}
	return asynq.NewTask(TaskRuleDriftScan, data), nil
}
