package tasks

import (
	"context"
	"fmt"

	"github.com/piyasasohbet/piyasabot/internal/queue"
)

// newQueueReportTask logs the depth of every queue and warns when the DLQ holds
// messages.
func newQueueReportTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "queue_report")

	return func(ctx context.Context) error {
		args := []any{}
		if deps.Priority != nil {
			depths, err := deps.Priority.Depths(ctx)
			if err != nil {
				return fmt.Errorf("failed to read priority queue depths: %w", err)
			}
			args = append(args, "priority_high", depths[queue.PriorityHigh], "priority_normal", depths[queue.PriorityNormal])
		}
		if deps.Outbound != nil {
			depths, err := deps.Outbound.Depths(ctx)
			if err != nil {
				return fmt.Errorf("failed to read message queue depths: %w", err)
			}
			args = append(args,
				"outbound_high", depths[queue.KeyOutboundHigh],
				"outbound_normal", depths[queue.KeyOutboundNormal],
				"outbound_low", depths[queue.KeyOutboundLow],
				"outbound_retry", depths[queue.KeyOutboundRetry],
				"dlq", depths[queue.KeyOutboundDLQ],
			)
			if n := depths[queue.KeyOutboundDLQ]; n > 0 {
				log.WarnContext(ctx, "Dead-letter queue is not empty", "dlq", n)
			}
		}
		log.InfoContext(ctx, "Queue report", args...)
		return nil
	}
}
