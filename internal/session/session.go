// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session owns the lifecycle of playback sessions. A session binds
// one source to one engine through an adapter, and at most one engine is
// attached per session at any moment.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/metrics"
	"github.com/ManuGH/playbackd/internal/player/adapter"
	"github.com/ManuGH/playbackd/internal/player/controls"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/ManuGH/playbackd/internal/subtitle"
	"github.com/rs/zerolog"
)

// Session is one live playback binding. All mutation goes through the
// manager; callers interact with the state store and the controls facade.
type Session struct {
	ID       string
	Source   model.Source
	Backend  model.Backend
	Platform model.Platform
	Store    *state.Store
	Controls *controls.Facade

	mu        sync.Mutex
	ad        *adapter.Adapter
	bridge    *cast.Bridge
	artifacts *subtitle.Artifacts
	injector  *subtitle.Injector
	createdAt time.Time
	lastSeen  time.Time
	lastSaved time.Time
	logger    zerolog.Logger
}

// adapterRef is handed to the controls facade so a retry can swap the
// adapter without rebuilding the facade.
func (s *Session) adapterRef() *adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ad
}

func (s *Session) setAdapter(a *adapter.Adapter) {
	s.mu.Lock()
	s.ad = a
	s.mu.Unlock()
}

// Heartbeat marks the session as in use. Progress updates heartbeat
// implicitly; idle clients poll this through the API.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// InjectState reports where the subtitle sideload pipeline currently is.
func (s *Session) InjectState() subtitle.InjectState {
	if s.injector == nil {
		return subtitle.InjectIdle
	}
	return s.injector.State()
}

// detach tears down the current adapter, if any. Teardown always completes
// before a new attach may begin.
func (s *Session) detach(ctx context.Context) error {
	s.mu.Lock()
	a := s.ad
	s.ad = nil
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	if err := a.Detach(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("engine teardown reported error")
		return err
	}
	return nil
}

func (s *Session) observeReady(started time.Time) func() {
	return func() {
		metrics.ObserveSessionStartup(string(s.Backend), time.Since(started))
		s.logger.Info().
			Dur("startup", time.Since(started)).
			Msg("session ready")
	}
}

// snapshotPosition returns what should be persisted for resume.
func (s *Session) snapshotPosition() (float64, float64) {
	snap := s.Store.Snapshot()
	return snap.Current, snap.Duration
}
