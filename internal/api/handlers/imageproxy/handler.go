// Package imageproxy serves preset thumbnails of token artwork.
package imageproxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"Kittens/internal/core/imageproxy"
	"Kittens/internal/core/ipfs"
)

// Service is the thumbnail service the handler depends on.
type Service interface {
	GetImage(ctx context.Context, preset, rawURI string) ([]byte, error)
}

// Handler handles HTTP requests for the image proxy.
type Handler struct {
	service Service
}

// NewHandler creates a new image proxy handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleImage handles GET /img/{preset}?uri=...
// The ETag is derived from the preset and the canonical source URI, which is
// content-addressed for IPFS sources.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	preset := chi.URLParam(r, "preset")
	raw := r.URL.Query().Get("uri")
	if preset == "" || strings.TrimSpace(raw) == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing required parameters")
		return
	}
	if _, err := imageproxy.GetPreset(preset); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid preset: "+preset)
		return
	}

	canonical := ipfs.RepairScheme(ipfs.Normalize(raw))
	etag := `"` + preset + "-" + imageproxy.CacheKey(canonical)[:16] + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := h.service.GetImage(r.Context(), preset, raw)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("ETag", etag)
	if ipfs.IsIPFSLike(canonical) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to write image response",
			"preset", preset,
			"uri", canonical,
			"error", err,
		)
	}
}

// handleServiceError converts service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, imageproxy.ErrInvalidPreset):
		writeErrorResponse(w, http.StatusBadRequest, "invalid preset")
	case errors.Is(err, imageproxy.ErrEmptySource):
		writeErrorResponse(w, http.StatusBadRequest, "uri is empty after normalization")
	case errors.Is(err, imageproxy.ErrUnsupportedSource):
		writeErrorResponse(w, http.StatusUnprocessableEntity, "image source cannot be proxied")
	case errors.Is(err, imageproxy.ErrSourceNotFound):
		writeErrorResponse(w, http.StatusNotFound, "image not found")
	case errors.Is(err, imageproxy.ErrSourceTimeout):
		writeErrorResponse(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, imageproxy.ErrSourceFetchFailed):
		writeErrorResponse(w, http.StatusBadGateway, "failed to fetch source image")
	case errors.Is(err, imageproxy.ErrUnsupportedFormat):
		writeErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported image format")
	case errors.Is(err, imageproxy.ErrImageTooLarge):
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, "image too large")
	case errors.Is(err, imageproxy.ErrProcessingFailed):
		writeErrorResponse(w, http.StatusInternalServerError, "image processing failed")
	default:
		slog.Error("[IMAGE-PROXY] unhandled service error", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeErrorResponse writes plain text; clients of this endpoint expect image bytes,
// not JSON.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to write error response",
			"status", status,
			"error", err,
		)
	}
}
