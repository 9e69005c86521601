package routes

import (
	"github.com/go-chi/chi/v5"

	imageproxyhandlers "Kittens/internal/api/handlers/imageproxy"
)

// RegisterImageProxyRoutes registers the thumbnail endpoint.
//
// Route: GET /img/{preset}?uri=<token image URI>
//
// Supports ETag revalidation with If-None-Match.
func RegisterImageProxyRoutes(r chi.Router, service imageproxyhandlers.Service) {
	h := imageproxyhandlers.NewHandler(service)
	r.Get("/img/{preset}", h.HandleImage)
}
