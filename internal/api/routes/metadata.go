package routes

import (
	"github.com/go-chi/chi/v5"

	ipfshandlers "Kittens/internal/api/handlers/ipfs"
	metadatahandlers "Kittens/internal/api/handlers/metadata"
	"Kittens/internal/core/ipfs"
	"Kittens/internal/core/metadata"
)

// RegisterMetadataRoutes registers single-URI resolution and IPFS diagnostics.
// stats may be nil when gateway statistics are not available.
func RegisterMetadataRoutes(r chi.Router, service metadata.Service, stats metadatahandlers.StatsSource, resolver ipfs.Resolver) {
	mh := metadatahandlers.NewHandler(service, stats)
	ih := ipfshandlers.NewHandler(resolver)

	r.Get("/api/metadata", mh.HandleResolve)
	r.Get("/api/gateways", mh.HandleGatewayStats)
	r.Get("/api/ipfs/inspect/{cid}", ih.HandleInspect)
}
