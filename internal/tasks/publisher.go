package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/database/models"
)

// Enqueuer is the part of asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher announces billing transitions on the task queue.
type Publisher struct {
	client Enqueuer
}

var _ billing.Publisher = (*Publisher)(nil)

func NewPublisher(client Enqueuer) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) BillingStatusChanged(ctx context.Context, tenantID uuid.UUID, from, to models.BillingStatus) error {
	task, err := NewBillingStatusChangedTask(BillingStatusChangedPayload{
		TenantID:  tenantID,
		From:      from,
		To:        to,
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeBillingStatusChanged, err)
	}
	return nil
}
