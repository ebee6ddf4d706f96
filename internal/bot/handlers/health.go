package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/metrics"
)

const healthTimeout = 3 * time.Second

// HealthReport is the body of GET /healthz.
type HealthReport struct {
	Status        string            `json:"status"`
	Database      string            `json:"database"`
	Metrics       *metrics.Snapshot `json:"metrics,omitempty"`
	PriorityQueue map[string]int64  `json:"priority_queue,omitempty"`
	MessageQueue  map[string]int64  `json:"message_queue,omitempty"`
}

// NewHealthHandler serves engine counters and queue depths. It answers 503 when the
// database does not respond.
func NewHealthHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "health")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		report := HealthReport{Status: "ok", Database: "ok"}
		code := http.StatusOK
		if err := deps.Store.Ping(ctx); err != nil {
			log.WarnContext(ctx, "Health check database ping failed", "error", err)
			report.Status, report.Database = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
		if deps.Metrics != nil {
			deps.Metrics.SetDBConnections(deps.Store.OpenConnections())
			snap := deps.Metrics.Snapshot()
			report.Metrics = &snap
		}
		if deps.Priority != nil {
			if depths, err := deps.Priority.Depths(ctx); err == nil {
				report.PriorityQueue = depths
			} else {
				log.WarnContext(ctx, "Failed to read priority queue depths", "error", err)
			}
		}
		if deps.Outbound != nil {
			if depths, err := deps.Outbound.Depths(ctx); err == nil {
				report.MessageQueue = depths
			} else {
				log.WarnContext(ctx, "Failed to read message queue depths", "error", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.DebugContext(ctx, "Failed to write health report", "error", err)
		}
	}
}
