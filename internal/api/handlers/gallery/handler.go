// Package gallery serves the contract gallery: a cached snapshot, reloads and a
// Server-Sent Events stream of incremental updates.
package gallery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"Kittens/internal/api/handlers"
	"Kittens/internal/core/gallery"
)

// Galleries is the part of gallery.Manager the handlers use.
type Galleries interface {
	Open(address string) (*gallery.Loader, error)
	Reload(address string) (*gallery.Loader, error)
}

// Response is the body of GET /api/gallery/{address}.
type Response struct {
	Address   string         `json:"address"`
	SessionID string         `json:"sessionId"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Items     []gallery.Item `json:"items"`
}

// Handler handles gallery requests.
type Handler struct {
	galleries Galleries
	heartbeat time.Duration
}

// NewHandler creates a gallery handler.
func NewHandler(galleries Galleries) *Handler {
	return &Handler{galleries: galleries, heartbeat: 15 * time.Second}
}

// HandleGet handles GET /api/gallery/{address}.
// It hydrates from cache, kicks a background load if none has run, and returns
// whatever is visible right now.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	loader, err := h.galleries.Open(address)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, snapshot(loader))
}

// HandleReload handles POST /api/gallery/{address}/reload.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	loader, err := h.galleries.Reload(address)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	handlers.WriteJSON(w, http.StatusAccepted, snapshot(loader))
}

// HandleEvents handles GET /api/gallery/{address}/events.
// Every change to the visible items is sent as an "items" event carrying the
// full snapshot. The stream ends when the client goes away.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.WriteError(w, http.StatusInternalServerError, "StreamingUnsupported", "streaming is not supported")
		return
	}

	loader, err := h.galleries.Open(address)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updates, unsubscribe := loader.Sink().Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "items", snapshot(loader)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			resp := snapshot(loader)
			resp.Items = items
			if err := writeEvent(w, "items", resp); err != nil {
				slog.Debug("[GALLERY] event stream closed", "address", address, "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func snapshot(loader *gallery.Loader) Response {
	resp := Response{
		Address:   loader.Address(),
		SessionID: loader.SessionID(),
		Status:    loader.Status().State.String(),
		Items:     loader.Items(),
	}
	if resp.Items == nil {
		resp.Items = []gallery.Item{}
	}
	if err := loader.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func writeEvent(w http.ResponseWriter, event string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidAddress", "address must be a 20-byte hex contract address")
		return "", false
	}
	return address, true
}
