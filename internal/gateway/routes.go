package gateway

import (
	"net/http"

	"go.uber.org/zap"
)

// NewMux assembles the full route table behind CORS and access logging.
func NewMux(h *Handler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("POST /v1/runs", h.handleRun)
	mux.HandleFunc("POST /v1/batches", h.handleStartBatch)
	mux.HandleFunc("GET /v1/batches", h.handleListBatches)
	mux.HandleFunc("GET /v1/batches/{id}", h.handleGetBatch)

	mux.HandleFunc("GET /v1/profiles", h.handleListProfiles)
	mux.HandleFunc("GET /v1/profiles/{id}", h.handleGetProfile)
	mux.HandleFunc("POST /v1/score", h.handleScore)

	mux.HandleFunc("GET /v1/usage", h.handleUsage)
	mux.HandleFunc("GET /v1/events", h.handleEvents)
	mux.HandleFunc("GET /v1/watch", h.handleWatch)

	return corsMiddleware(logMiddleware(log)(mux))
}
