// Package server implements the Relayer's HTTP API described in spec.md
// §4.6/§6, routed with go-chi/chi — a dependency the teacher declared but
// never wired into any of its own HTTP servers (those use gorilla/mux
// instead). This is that dependency's first real home in the codebase.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sidebet/relayer/core"
	"github.com/sidebet/relayer/pkg/config"
)

// Server bundles every dependency an HTTP handler might need. Handlers are
// methods on Server so they share this state without a global.
type Server struct {
	cfg   *config.Config
	store core.Store
	chain *core.ChainGateway
	sig   *core.SignatureService
	sync  *core.SyncService
	fin   *core.FinalizationService
	mx    *core.Metrics
	log   *zap.SugaredLogger

	startedAt time.Time
}

// New builds a Server; Router builds its chi router.
func New(cfg *config.Config, store core.Store, chain *core.ChainGateway, sig *core.SignatureService, sync *core.SyncService, fin *core.FinalizationService, mx *core.Metrics, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg: cfg, store: store, chain: chain, sig: sig, sync: sync, fin: fin, mx: mx,
		log: log, startedAt: time.Now(),
	}
}

// Router builds the chi router with every route from spec.md §6, gated by
// the two rate-limit tiers from §4.6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger, jsonHeaders, cors(s.cfg.AllowedOrigins))

	readLimiter := newIPLimiter(s.cfg.RateLimitMaxRequests, s.cfg.RateLimitWindow)
	writeLimiter := newIPLimiter(s.cfg.WriteRateLimitPerMin, time.Minute)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(readLimiter))

		r.Get("/health/detailed", s.handleHealthDetailed)
		r.Get("/health/metrics", s.handleHealthMetrics)
		r.Get("/health/queue", s.handleHealthQueue)

		r.Get("/api/markets", s.handleListMarkets)
		r.Get("/api/markets/{address}", s.handleGetMarket)
		r.Get("/api/markets/{address}/participants", s.handleGetParticipants)
		r.Get("/api/markets/{address}/proposal", s.handleGetProposal)
		r.Get("/api/markets/{address}/status", s.handleGetMarketStatus)

		r.Get("/api/attestations", s.handleListAttestations)
		r.Get("/api/attestations/{market}", s.handleListAttestationsByMarket)
		r.Get("/api/attestations/{market}/count", s.handleAttestationCount)
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(writeLimiter))

		r.Post("/api/markets/{address}/sync", s.handleSyncMarket)
		r.Post("/api/markets/predict-address", s.handlePredictAddress)
		r.Post("/api/attestations", s.handleSubmitAttestation)

		r.With(requireDevelopment(s.cfg.IsDevelopment)).Delete("/api/attestations/{market}", s.handleDeleteAttestations)
	})

	return r
}

