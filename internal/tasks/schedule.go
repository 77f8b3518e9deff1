package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/voxpopulous/pkg/util"
)

// Registrar is the part of asynq.Scheduler used to install periodic tasks.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterTrialSweep schedules the trial sweep on a five-field cron expression.
func RegisterTrialSweep(s Registrar, cronExpr string) (string, error) {
	if err := util.ValidateCronExpr(cronExpr); err != nil {
		return "", fmt.Errorf("trial sweep schedule: %w", err)
	}
	return s.Register(cronExpr, NewTrialSweepTask())
}
