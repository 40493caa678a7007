// internal/server/handlers/trend.go

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"trendagg/internal/adapter/storage"
)

// TrendLister provides read access to persisted trend rows.
type TrendLister interface {
	RecentTrends(ctx context.Context, limit int) ([]storage.StoredTrend, error)
}

// TrendHandler handles trend-related HTTP requests
type TrendHandler struct {
	store  TrendLister
	limit  int
	logger *slog.Logger
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(store TrendLister, limit int, logger *slog.Logger) *TrendHandler {
	return &TrendHandler{
		store:  store,
		limit:  limit,
		logger: logger,
	}
}

// GetTrends returns the most recently persisted trend rows
func (h *TrendHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.store.RecentTrends(r.Context(), h.limit)
	if err != nil {
		h.logger.Error("failed to read trends", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to get trends")
		return
	}

	if trends == nil {
		trends = []storage.StoredTrend{}
	}

	respondWithJSON(w, http.StatusOK, trends)
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string) {
	response := map[string]string{"error": message}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
