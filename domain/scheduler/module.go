package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/domain/rem"
	"github.com/Healer-AI/p8fs-sub000/internal/config"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Service   *rem.Service
	Log       *slog.Logger
	Cfg       *config.Config
}

// RegisterTasks registers all scheduled tasks. An empty cron expression
// disables the task.
func RegisterTasks(p TaskParams) error {
	schedule := p.Cfg.REM.MetadataRefreshCron
	if schedule == "" {
		p.Log.Info("metadata refresh disabled, skipping task registration")
		return nil
	}

	task := NewMetadataRefreshTask(p.Service, p.Log)
	if err := p.Scheduler.AddCronTask(MetadataRefreshTaskName, schedule, task.Run); err != nil {
		return err
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
