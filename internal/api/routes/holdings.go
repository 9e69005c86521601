package routes

import (
	"github.com/go-chi/chi/v5"

	holdingshandlers "Kittens/internal/api/handlers/holdings"
	"Kittens/internal/core/holdings"
)

// RegisterHoldingsRoutes registers GET /api/holdings/{owner}.
// Holdings scans can touch thousands of tokens; they sit behind the global rate limiter.
func RegisterHoldingsRoutes(r chi.Router, service holdings.Service) {
	h := holdingshandlers.NewHandler(service)
	r.Get("/api/holdings/{owner}", h.HandleGet)
}
