// Package ipfs exposes CID diagnostics.
package ipfs

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"Kittens/internal/api/handlers"
	"Kittens/internal/core/ipfs"
)

// Handler handles IPFS diagnostic requests.
type Handler struct {
	resolver ipfs.Resolver
}

// NewHandler creates an IPFS handler that maps CIDs through resolver.
func NewHandler(resolver ipfs.Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// InspectResponse is the body of GET /api/ipfs/inspect/{cid}.
type InspectResponse struct {
	ipfs.CIDInfo
	Gateways []string `json:"gateways"`
}

// HandleInspect handles GET /api/ipfs/inspect/{cid}.
// An optional ?path= is appended to the gateway URLs.
func (h *Handler) HandleInspect(w http.ResponseWriter, r *http.Request) {
	c := chi.URLParam(r, "cid")
	if err := ipfs.ValidateCID(c); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidCID", "invalid CID format")
		return
	}

	uri := "ipfs://" + c
	if p := r.URL.Query().Get("path"); p != "" {
		uri += "/" + p
	}

	info, err := ipfs.Inspect(uri)
	if err != nil {
		switch {
		case errors.Is(err, ipfs.ErrInvalidCID), errors.Is(err, ipfs.ErrNotIPFS):
			handlers.WriteError(w, http.StatusBadRequest, "InvalidCID", err.Error())
		default:
			handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		}
		return
	}

	gateways, err := h.resolver.GatewayURLs(uri)
	if err != nil {
		gateways = []string{}
	}
	handlers.WriteJSON(w, http.StatusOK, InspectResponse{CIDInfo: info, Gateways: gateways})
}
