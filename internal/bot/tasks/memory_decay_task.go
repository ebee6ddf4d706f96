package tasks

import (
	"context"
	"fmt"
	"time"
)

// Memory decay parameters.
const (
	MemoryDecayFactor = 0.97
	MemoryUnusedAfter = 24 * time.Hour
	MemoryPruneBelow  = 0.1
)

// newMemoryDecayTask fades memories a bot has not used for a day and deletes the ones
// that faded below the prune line without ever being used.
func newMemoryDecayTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "memory_decay")

	return func(ctx context.Context) error {
		decayed, err := deps.Store.DecayMemories(ctx, MemoryDecayFactor, time.Now().Add(-MemoryUnusedAfter))
		if err != nil {
			log.ErrorContext(ctx, "Memory decay failed", "error", err)
			return fmt.Errorf("failed to decay memories: %w", err)
		}
		pruned, err := deps.Store.PruneMemories(ctx, MemoryPruneBelow)
		if err != nil {
			log.ErrorContext(ctx, "Memory prune failed", "error", err)
			return fmt.Errorf("failed to prune memories: %w", err)
		}
		log.InfoContext(ctx, "Memory decay completed", "decayed", decayed, "pruned", pruned)
		return nil
	}
}
