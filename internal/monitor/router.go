package monitor

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxMessageSize bounds frames read from monitor clients.
const DefaultMaxMessageSize = 4096

// StatusFunc reports the module status served on /status.
type StatusFunc func(ctx context.Context) (any, error)

// NewRouter serves /ws, /status and /metrics.
func NewRouter(hub *Hub, status StatusFunc, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", UpgradeHandler(hub, DefaultMaxMessageSize))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		body, err := status(req.Context())
		if err != nil {
			hub.logger.Warnf("[monitor] status: %v", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			hub.logger.Warnf("[monitor] write status: %v", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
