package tasks

import (
	"context"
	"fmt"
)

// newSettingsRefreshTask reloads the settings snapshot so that edits made directly in
// the table are picked up without a config-update event.
func newSettingsRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "settings_refresh")

	return func(ctx context.Context) error {
		if deps.Settings == nil {
			return nil
		}
		if err := deps.Settings.Refresh(ctx); err != nil {
			log.WarnContext(ctx, "Settings refresh failed, keeping previous snapshot", "error", err)
			return fmt.Errorf("failed to refresh settings: %w", err)
		}
		log.DebugContext(ctx, "Settings refreshed")
		return nil
	}
}
