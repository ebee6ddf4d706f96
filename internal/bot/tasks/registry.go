package tasks

import (
	"context"
)

// ScheduledTaskFunc is the signature of every task. Tasks respect ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by the name used in scheduler.tasks.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		"settings_refresh": newSettingsRefreshTask(deps),
		"memory_decay":     newMemoryDecayTask(deps),
		"sql_maintenance":  newSQLMaintenanceTask(deps),
		"queue_report":     newQueueReportTask(deps),
	}
	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
