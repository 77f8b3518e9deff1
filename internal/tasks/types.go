package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/internal/database/models"
)

// Task type names
const (
	TypeTrialSweep           = "billing:trial_sweep"
	TypeBillingStatusChanged = "billing:status_changed"
)

// TrialSweepPayload is empty - the sweep checks every top-level tenant
type TrialSweepPayload struct{}

func NewTrialSweepTask() *asynq.Task {
	return asynq.NewTask(TypeTrialSweep, nil, asynq.Queue("low"), asynq.MaxRetry(3))
}

// BillingStatusChangedPayload records one billing status transition.
type BillingStatusChangedPayload struct {
	TenantID  uuid.UUID            `json:"tenant_id"`
	From      models.BillingStatus `json:"from"`
	To        models.BillingStatus `json:"to"`
	ChangedAt time.Time            `json:"changed_at"`
}

func NewBillingStatusChangedTask(payload BillingStatusChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBillingStatusChanged, data, asynq.Queue("critical")), nil
}
