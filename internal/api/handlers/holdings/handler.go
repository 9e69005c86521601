// Package holdings serves the tokens an address owns across configured contracts.
package holdings

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"Kittens/internal/api/handlers"
	"Kittens/internal/core/holdings"
)

// Handler handles holdings requests.
type Handler struct {
	service holdings.Service
}

// NewHandler creates a holdings handler.
func NewHandler(service holdings.Service) *Handler {
	return &Handler{service: service}
}

// HandleGet handles GET /api/holdings/{owner}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if !common.IsHexAddress(owner) {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidOwner", "owner must be a 20-byte hex address")
		return
	}

	result, err := h.service.Holdings(r.Context(), owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, result)
}

// handleServiceError converts holdings errors to HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, holdings.ErrInvalidOwner):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidOwner", "owner must be a 20-byte hex address")
	case errors.Is(err, holdings.ErrNoContracts):
		handlers.WriteError(w, http.StatusServiceUnavailable, "NoContracts", "no contracts are configured for holdings")
	default:
		slog.Error("[HOLDINGS] unhandled service error", "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
