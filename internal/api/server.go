// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes playback sessions over HTTP.
package api

import (
	"net/http"

	"github.com/ManuGH/playbackd/internal/api/middleware"
	"github.com/ManuGH/playbackd/internal/health"
	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/probe"
	"github.com/ManuGH/playbackd/internal/session"
	"github.com/ManuGH/playbackd/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options tune the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RateLimitRPM   int
	TracingService string
	Version        string
}

// Server routes session control requests to the manager.
type Server struct {
	sessions *session.Manager
	prober   *probe.Prober
	streams  *stream.Builder
	health   *health.Manager
	opts     Options
	log      zerolog.Logger
}

// NewServer wires the HTTP surface. prober and streams may be nil; the
// corresponding endpoints then answer 503.
func NewServer(sessions *session.Manager, prober *probe.Prober, streams *stream.Builder, opts Options) *Server {
	if opts.RateLimitRPM <= 0 {
		opts.RateLimitRPM = 600
	}
	return &Server{
		sessions: sessions,
		prober:   prober,
		streams:  streams,
		health:   health.NewManager(opts.Version),
		opts:     opts,
		log:      xglog.WithComponent("api"),
	}
}

// HealthManager exposes the health manager so the daemon can register
// component checkers during startup.
func (s *Server) HealthManager() *health.Manager {
	return s.health
}

// Router builds the chi router with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.opts.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.opts.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.opts.RateLimitRPM,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)

				r.Post("/play", s.handlePlay)
				r.Post("/pause", s.handlePause)
				r.Post("/toggle", s.handleToggle)
				r.Post("/retry", s.handleRetry)
				r.Post("/seek", s.handleSeek)
				r.Post("/volume", s.handleVolume)
				r.Post("/heartbeat", s.handleHeartbeat)

				r.Post("/tracks/audio", s.handleSelectAudio)
				r.Post("/tracks/subtitle", s.handleSelectSubtitle)

				r.Post("/cast/start", s.handleCastStart)
				r.Post("/cast/stop", s.handleCastStop)
			})
		})

		r.With(middleware.ProbeRateLimit()).Get("/probe", s.handleProbe)
	})

	return r
}
