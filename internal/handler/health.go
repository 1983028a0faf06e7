package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/eventhub/internal/repository"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// Health answers 200 while the store responds to a ping and 503 otherwise.
//
// HTTP: GET /health
func Health(store repository.Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Store: "down"})
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "up"})
	}
}
