// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/engine"
)

// Handler serves the optimization engine's operator endpoints
type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewHandler creates the handler
func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: eng, logger: logger}
}

// RegisterRoutes registers the operator endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.GetHealth)
	r.Get("/insights", h.GetInsights)
	r.Get("/model/stats", h.GetModelStats)
}

// GetHealth reports the composite health check
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.engine.CheckHealth(r.Context())

	status := http.StatusOK
	if !result.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, result)
}

// GetInsights reports the aggregated system view; window defaults to one hour
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = parsed
	}

	ins, err := h.engine.SystemInsights(r.Context(), window)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidArgument) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("insights failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "insights unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, ins)
}

// GetModelStats reports the trainer's model quality snapshot
func (h *Handler) GetModelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.ModelStatistics()
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
