package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/internal/billing"
	"github.com/hugh/voxpopulous/internal/tenant"
)

type Handler struct {
	billing *billing.Service
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(billingService *billing.Service, logger *slog.Logger) *Handler {
	return &Handler{
		billing: billingService,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTrialSweep, h.HandleTrialSweep)
	mux.HandleFunc(TypeBillingStatusChanged, h.HandleBillingStatusChanged)
}

// HandleTrialSweep suspends every top-level tenant whose trial has ended.
func (h *Handler) HandleTrialSweep(ctx context.Context, _ *asynq.Task) error {
	started := h.now()
	h.logger.Info("starting trial sweep")

	count, err := h.billing.ExpireTrials(ctx, started)
	if err != nil {
		h.logger.Error("trial sweep failed", "error", err)
		return err
	}

	h.logger.Info("completed trial sweep",
		"suspended", count,
		"duration", time.Since(started),
	)
	return nil
}

// HandleBillingStatusChanged drops cached entitlements for the tenant and its
// children so every process observes the new status.
func (h *Handler) HandleBillingStatusChanged(ctx context.Context, t *asynq.Task) error {
	var payload BillingStatusChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.billing.InvalidateTree(ctx, payload.TenantID); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			h.logger.Warn("billing status change for unknown tenant", "tenant_id", payload.TenantID)
			return fmt.Errorf("tenant %s: %w", payload.TenantID, asynq.SkipRetry)
		}
		return err
	}

	h.logger.Info("billing status changed",
		"tenant_id", payload.TenantID,
		"from", payload.From,
		"to", payload.To,
		"changed_at", payload.ChangedAt,
	)
	return nil
}
