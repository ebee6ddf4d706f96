// Package tasks implements the periodic maintenance jobs run by the scheduler.
package tasks

import (
	"log/slog"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// TaskDeps contains the dependencies of scheduled tasks. Priority and Outbound may be
// nil, in which case the queue report only covers what is set.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Settings *settings.Cache
	Priority *queue.PriorityQueue
	Outbound *queue.MessageQueue
	Metrics  DBGauge
}

// DBGauge receives the connection pool size after each maintenance run.
type DBGauge interface {
	SetDBConnections(n int)
}
