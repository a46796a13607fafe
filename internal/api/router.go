/**
 * @description
 * This file sets up the HTTP router for the packet-service. It defines the
 * API endpoints, associates them with their handlers, and applies
 * middleware for logging, panic recovery, timeouts and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: Metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthConfig carries the bearer-token verification settings for the router.
type AuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// PacketRoutes creates and returns the router for the packet service.
func PacketRoutes(h *PacketHandlers, auth AuthConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(auth))

		r.Post("/packets", h.CreatePacketHandler)
		r.Get("/packets/{packet_id}", h.GetPacketHandler)
		r.Post("/packets/{packet_id}/claims", h.ClaimPacketHandler)
		r.Get("/packets/{packet_id}/claims/{claimant_id}", h.GetClaimHandler)
	})

	return r
}
