package routes

import (
	"github.com/go-chi/chi/v5"

	galleryhandlers "Kittens/internal/api/handlers/gallery"
)

// RegisterGalleryRoutes registers the contract gallery endpoints.
//
//   - GET  /api/gallery/{address}         cached snapshot, starts a load if none ran
//   - POST /api/gallery/{address}/reload  clears the loaded guard and loads again
//   - GET  /api/gallery/{address}/events  Server-Sent Events stream of snapshots
func RegisterGalleryRoutes(r chi.Router, galleries galleryhandlers.Galleries) {
	h := galleryhandlers.NewHandler(galleries)

	r.Route("/api/gallery/{address}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/reload", h.HandleReload)
		r.Get("/events", h.HandleEvents)
	})
}
