package handlers

import (
	"log/slog"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/queue"
)

// HandlerDeps provides dependencies for the intake and health handlers. Cache,
// Outbound and Metrics may be nil.
type HandlerDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Cache    *cache.Manager
	Priority *queue.PriorityQueue
	Outbound *queue.MessageQueue
	Metrics  *metrics.Recorder
}
