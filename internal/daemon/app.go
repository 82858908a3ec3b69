// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon owns the long-lived runtime: the HTTP server, the config
// watcher and the reload signal loop. It blocks in Run until the root
// context is cancelled, then drains sessions and the server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/playbackd/internal/config"
	"github.com/ManuGH/playbackd/internal/session"
	"github.com/rs/zerolog"
)

// ErrMissingHandler is returned when Run is called without an HTTP handler.
var ErrMissingHandler = errors.New("daemon: missing http handler")

const shutdownTimeout = 15 * time.Second

// Deps are the subsystems the app drives. Handler and Sessions are required;
// the config holder is optional.
type Deps struct {
	Logger    zerolog.Logger
	Listen    string
	Handler   http.Handler
	Sessions  *session.Manager
	CfgHolder *config.Holder
	// TLSCert and TLSKey switch the server to HTTPS when both are set.
	TLSCert string
	TLSKey  string
}

// App orchestrates startup and shutdown ordering.
type App struct {
	deps         Deps
	reloadSignal os.Signal
}

// New creates the app orchestrator.
func New(deps Deps) *App {
	return &App{deps: deps, reloadSignal: syscall.SIGHUP}
}

// Run starts the server and background loops and blocks until ctx is
// cancelled or the server fails. On return all sessions are stopped.
func (a *App) Run(ctx context.Context) error {
	if a.deps.Handler == nil {
		return ErrMissingHandler
	}

	srv := &http.Server{
		Addr:              a.deps.Listen,
		Handler:           a.deps.Handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if the file
	// cannot be watched.
	if a.deps.CfgHolder != nil {
		if err := a.deps.CfgHolder.Watch(ctx); err != nil {
			a.deps.Logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		g.Go(func() error { return a.reloadLoop(ctx) })
	}

	g.Go(func() error {
		var err error
		if a.deps.TLSCert != "" && a.deps.TLSKey != "" {
			a.deps.Logger.Info().Str("addr", srv.Addr).Msg("API server listening (HTTPS)")
			err = srv.ListenAndServeTLS(a.deps.TLSCert, a.deps.TLSKey)
		} else {
			a.deps.Logger.Info().Str("addr", srv.Addr).Msg("API server listening")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.deps.Logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		if a.deps.Sessions != nil {
			if err := a.deps.Sessions.Close(shutdownCtx); err != nil {
				a.deps.Logger.Warn().Err(err).Msg("session drain incomplete")
			}
		}
		return nil
	})

	return g.Wait()
}

// reloadLoop reloads config on SIGHUP until ctx is cancelled. Failed reloads
// keep the previous config.
func (a *App) reloadLoop(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, a.reloadSignal)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.deps.Logger.Info().
				Str("event", "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := a.deps.CfgHolder.Reload(ctx); err != nil {
				a.deps.Logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}
