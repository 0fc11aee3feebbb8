package handlers

import (
	"context"
	"net/http"
	"time"

	"paytr-payment-api/models"
	"paytr-payment-api/queue"
	"paytr-payment-api/utils"
)

type LiveChecker interface {
	Live() bool
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type QueueStatter interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type HealthHandler struct {
	gateway LiveChecker
	db      Pinger
	queue   QueueStatter
}

// NewHealthHandler takes optional db and queue dependencies; nil ones are
// left out of the report.
func NewHealthHandler(gateway LiveChecker, db Pinger, q QueueStatter) *HealthHandler {
	return &HealthHandler{gateway: gateway, db: db, queue: q}
}

// Health reports whether the gateway runs live or simulated. A failing
// database marks the service degraded but still answers 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{Status: "ok", Gateway: "simulated"}
	if h.gateway != nil && h.gateway.Live() {
		status.Gateway = "live"
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.db.PingContext(ctx)
		cancel()
		if err != nil {
			status.DB = "unavailable"
			status.Status = "degraded"
		} else {
			status.DB = "ok"
		}
	}

	if h.queue != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		stats, err := h.queue.Stats(ctx)
		cancel()
		if err != nil {
			status.Queue = "unavailable"
			status.Status = "degraded"
		} else {
			status.Queue = stats
		}
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: status.Status,
		Data:    status,
	})
}
