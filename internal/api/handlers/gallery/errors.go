package gallery

import (
	"errors"
	"log/slog"
	"net/http"

	"Kittens/internal/api/handlers"
	"Kittens/internal/core/gallery"
)

// handleServiceError converts gallery errors to HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gallery.ErrInvalidAddress):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidAddress", "address must be a contract address")
	case errors.Is(err, gallery.ErrLoadInProgress):
		handlers.WriteError(w, http.StatusConflict, "LoadInProgress", "a gallery load is already running")
	case errors.Is(err, gallery.ErrLoadTimeout):
		handlers.WriteError(w, http.StatusGatewayTimeout, "LoadTimeout", "gallery load timed out")
	default:
		slog.Error("[GALLERY] unhandled service error", "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
