// Package metadata exposes single-URI metadata resolution and gateway health.
package metadata

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"Kittens/internal/api/handlers"
	"Kittens/internal/core/ipfs"
	"Kittens/internal/core/metadata"
)

// StatsSource reports per-gateway circuit breaker state.
type StatsSource interface {
	GatewayStats() map[string]metadata.GatewayStats
}

// ResolveResponse is the body of GET /api/metadata.
type ResolveResponse struct {
	Metadata  *metadata.Metadata `json:"metadata"`
	Canonical string             `json:"canonical"`
	HTTPURL   string             `json:"httpUrl"`
	Image     string             `json:"image,omitempty"`
}

// Handler handles metadata requests.
type Handler struct {
	service metadata.Service
	stats   StatsSource
}

// NewHandler creates a metadata handler. stats may be nil.
func NewHandler(service metadata.Service, stats StatsSource) *Handler {
	return &Handler{service: service, stats: stats}
}

// HandleResolve handles GET /api/metadata?uri=...
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("uri")
	if strings.TrimSpace(raw) == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "uri parameter is required")
		return
	}

	md, err := h.service.Resolve(r.Context(), raw)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, ResolveResponse{
		Canonical: ipfs.RepairScheme(ipfs.Normalize(raw)),
		HTTPURL:   h.service.ResolveURL(raw),
		Metadata:  &md,
		Image:     h.service.ResolveImage(md),
	})
}

// HandleGatewayStats handles GET /api/gateways.
func (h *Handler) HandleGatewayStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]metadata.GatewayStats{}
	if h.stats != nil {
		stats = h.stats.GatewayStats()
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"gateways": stats})
}

// handleServiceError converts metadata errors to HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metadata.ErrEmptyURI):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "uri is empty after normalization")
	case errors.Is(err, metadata.ErrInvalidDataURI):
		handlers.WriteError(w, http.StatusUnprocessableEntity, "InvalidDataURI", "data URI could not be decoded")
	case errors.Is(err, metadata.ErrTimeout):
		handlers.WriteError(w, http.StatusGatewayTimeout, "GatewayTimeout", "metadata request timed out")
	case errors.Is(err, metadata.ErrFetchExhausted):
		handlers.WriteError(w, http.StatusBadGateway, "FetchFailed", "no gateway returned metadata")
	default:
		slog.Error("[METADATA] unhandled service error", "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
