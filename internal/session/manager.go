// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/catalog"
	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/metrics"
	"github.com/ManuGH/playbackd/internal/player/adapter"
	"github.com/ManuGH/playbackd/internal/player/controls"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/ManuGH/playbackd/internal/probe"
	"github.com/ManuGH/playbackd/internal/resume"
	"github.com/ManuGH/playbackd/internal/subtitle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session: not found")

// Config tunes the manager.
type Config struct {
	// IdleTTL stops sessions that have seen no progress or heartbeat for
	// this long. Zero disables the sweeper.
	IdleTTL time.Duration
	// SweepInterval is how often the sweeper scans. Defaults to one minute.
	SweepInterval time.Duration
	// ArtifactDir roots the per-session subtitle artifacts. Empty means the
	// system temp directory.
	ArtifactDir string
	// ResumeSaveInterval coalesces resume-position writes. Defaults to 10s.
	ResumeSaveInterval time.Duration
	// SubtitleLanguage is the default sideload language for new sessions.
	SubtitleLanguage string
}

// Deps are the manager's collaborators. Registry is required; everything
// else degrades gracefully when nil.
type Deps struct {
	Registry *engine.Registry
	Resume   *resume.Store
	Prober   *probe.Prober
	// Catalog caches probe hints per content item so replays of known
	// items skip the remote prober. Optional.
	Catalog  *catalog.Store
	Subs     *subtitle.Fetcher
	Receiver cast.Receiver
}

// CreateOptions shape one session.
type CreateOptions struct {
	Platform model.Platform
	// Preference forces a backend; BackendAuto lets the policy decide.
	Preference model.Backend
	// Resume populates Source.StartTime from the position store when the
	// source itself carries no offset.
	Resume bool
	// SubtitleLanguage overrides the manager default for this session.
	SubtitleLanguage string
}

// Manager owns all live sessions.
type Manager struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	wg        sync.WaitGroup
	sweepStop chan struct{}
}

// NewManager wires a manager and starts the idle sweeper when configured.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.ResumeSaveInterval <= 0 {
		cfg.ResumeSaveInterval = 10 * time.Second
	}
	m := &Manager{
		cfg:       cfg,
		deps:      deps,
		log:       xglog.WithComponent("session"),
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		m.wg.Add(1)
		go m.sweep()
	}
	return m
}

// Create builds a session for src: picks a backend, constructs a fresh
// engine and attaches it. The returned session is already loading.
func (m *Manager) Create(ctx context.Context, src model.Source, opts CreateOptions) (*Session, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if opts.Platform == "" {
		opts.Platform = model.PlatformNative
	}
	if opts.Preference == "" {
		opts.Preference = model.BackendAuto
	}

	if opts.Resume && m.deps.Resume != nil && src.StartTime == 0 {
		pos, err := m.deps.Resume.Load(src.ContentType, src.ContentID)
		if err != nil {
			m.log.Warn().Err(err).Msg("resume lookup failed")
		} else if pos != nil {
			src.StartTime = pos.Seconds
		}
	}

	backend := engine.Select(src, opts.Platform, opts.Preference, m.deps.Registry)

	s := &Session{
		ID:        uuid.NewString(),
		Source:    src,
		Backend:   backend,
		Platform:  opts.Platform,
		Store:     state.New(),
		artifacts: subtitle.NewArtifacts(m.cfg.ArtifactDir),
		createdAt: time.Now(),
		lastSeen:  time.Now(),
	}
	s.logger = m.log.With().
		Str(xglog.FieldSessionID, s.ID).
		Str(xglog.FieldBackend, string(backend)).
		Logger()

	if m.deps.Subs != nil {
		var embedded subtitle.EmbeddedLookup
		if m.deps.Prober != nil {
			embedded = m.deps.Prober.EmbeddedSubtitleLanguages
			if m.deps.Catalog != nil && !src.ContentType.Live() {
				embedded = m.hintedLookup(src)
			}
		}
		s.injector = subtitle.NewInjector(m.deps.Subs, embedded, s.artifacts)
	}

	if err := m.attach(ctx, s, opts.subtitleLanguage(m.cfg.SubtitleLanguage)); err != nil {
		metrics.IncSessionStart(string(backend), false)
		return nil, err
	}
	metrics.IncSessionStart(string(backend), true)

	s.bridge = cast.NewBridge(m.deps.Receiver, s.Store)
	s.Controls = controls.New(s.Store, s.bridge, s.adapterRef)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.logger.Info().
		Str(xglog.FieldContainer, s.Source.Extension()).
		Msg("session created")
	return s, nil
}

func (o CreateOptions) subtitleLanguage(fallback string) string {
	if o.SubtitleLanguage != "" {
		return o.SubtitleLanguage
	}
	return fallback
}

// attach builds a fresh engine and adapter for s. The previous adapter, if
// any, must already be detached.
func (m *Manager) attach(ctx context.Context, s *Session, subLang string) error {
	eng, err := m.deps.Registry.New(s.Backend)
	if err != nil {
		return fmt.Errorf("session: engine: %w", err)
	}

	started := time.Now()
	ready := s.observeReady(started)
	hooks := adapter.Hooks{
		OnReady: func() {
			ready()
			if s.injector != nil && subLang != "" {
				m.runInjection(s, subLang)
			}
		},
		OnProgress: func(position, duration float64) {
			s.Heartbeat()
			m.saveResume(s, position, duration, false)
		},
		OnEnd: func() {
			m.clearResume(s)
		},
		OnError: func(err error) {
			metrics.IncPlaybackError(string(s.Backend))
		},
	}

	a, err := adapter.Attach(ctx, eng, s.Source, s.Store, s.artifacts, hooks)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Close(closeCtx)
		return err
	}
	s.setAdapter(a)
	return nil
}

// hintedLookup consults the catalog before the remote prober: items already
// known to carry no embedded subtitles are answered locally, and fresh probe
// results are written back as hints for the next replay.
func (m *Manager) hintedLookup(src model.Source) subtitle.EmbeddedLookup {
	return func(ctx context.Context, streamURL string) ([]string, error) {
		hints, err := m.deps.Catalog.Lookup(ctx, src.ContentID, src.ContentType)
		if err != nil {
			m.log.Warn().Err(err).Msg("catalog lookup failed")
		} else if hints != nil && !hints.HasSubtitles {
			return nil, nil
		}

		r, err := m.deps.Prober.Probe(ctx, streamURL, true)
		if err != nil {
			return nil, err
		}

		h := catalog.Hints{
			ContentID:       src.ContentID,
			ContentType:     src.ContentType,
			ContainerExt:    src.Extension(),
			HasSubtitles:    len(r.SubtitleTracks) > 0,
			AudioTrackCount: len(r.AudioTracks),
		}
		if len(r.AudioTracks) > 0 {
			h.AudioCodec = r.AudioTracks[0].Codec
		}
		if err := m.deps.Catalog.Save(ctx, h); err != nil {
			m.log.Warn().Err(err).Msg("catalog save failed")
		}

		langs := make([]string, 0, len(r.SubtitleTracks))
		for _, t := range r.SubtitleTracks {
			langs = append(langs, t.Language)
		}
		return langs, nil
	}
}

// runInjection runs the sideload flow off the event pump. Failures are
// logged and counted; playback is never blocked.
func (m *Manager) runInjection(s *Session, lang string) {
	a := s.adapterRef()
	if a == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		injected, err := s.injector.Run(ctx, a, s.Source, lang)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("subtitle injection failed")
		case injected:
			s.logger.Info().Str(xglog.FieldLanguage, lang).Msg("subtitle injected")
		}
		metrics.SubtitleInjectionsTotal.WithLabelValues(string(s.injector.State())).Inc()
	}()
}

func (m *Manager) saveResume(s *Session, position, duration float64, force bool) {
	if m.deps.Resume == nil || s.Source.ContentType.Live() {
		return
	}
	s.mu.Lock()
	if !force && time.Since(s.lastSaved) < m.cfg.ResumeSaveInterval {
		s.mu.Unlock()
		return
	}
	s.lastSaved = time.Now()
	s.mu.Unlock()

	err := m.deps.Resume.Save(resume.Position{
		ContentID:   s.Source.ContentID,
		ContentType: s.Source.ContentType,
		Seconds:     position,
		Duration:    duration,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("resume save failed")
	}
}

func (m *Manager) clearResume(s *Session) {
	if m.deps.Resume == nil || s.Source.ContentType.Live() {
		return
	}
	if err := m.deps.Resume.Delete(s.Source.ContentType, s.Source.ContentID); err != nil {
		s.logger.Warn().Err(err).Msg("resume clear failed")
	}
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Stop tears a session down: cast session ended, engine detached and
// artifacts revoked, final position persisted.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.SessionsActive.Dec()
	return m.teardown(ctx, s)
}

func (m *Manager) teardown(ctx context.Context, s *Session) error {
	if s.bridge != nil {
		if err := s.bridge.Stop(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("cast stop during teardown failed")
		}
	}
	position, duration := s.snapshotPosition()
	err := s.detach(ctx)
	m.saveResume(s, position, duration, true)
	s.logger.Info().Msg("session stopped")
	return err
}

// Retry rebuilds the session's engine from scratch at the last observed
// position. Teardown of the failed engine completes before the new attach
// begins.
func (m *Manager) Retry(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	position, _ := s.snapshotPosition()
	if err := s.detach(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("detach before retry reported error")
	}
	s.Store.ClearError()
	s.Store.SetLoading(true)
	if !s.Source.ContentType.Live() && position > 0 {
		s.Source.StartTime = position
	}

	metrics.SessionRetriesTotal.Inc()
	lang := m.cfg.SubtitleLanguage
	if err := m.attach(ctx, s, lang); err != nil {
		s.Store.SetError(err.Error())
		return err
	}
	s.Heartbeat()
	s.logger.Info().Msg("session retried")
	return nil
}

// sweep stops sessions idle past the TTL.
func (m *Manager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.cfg.IdleTTL)
			for _, s := range m.List() {
				if s.idleSince().Before(cutoff) {
					s.logger.Info().Msg("stopping idle session")
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					if err := m.Stop(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
						s.logger.Warn().Err(err).Msg("idle stop failed")
					}
					cancel()
				}
			}
		}
	}
}

// Close stops the sweeper and tears down every session.
func (m *Manager) Close(ctx context.Context) error {
	close(m.sweepStop)

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		metrics.SessionsActive.Dec()
		if err := m.teardown(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.wg.Wait()
	return firstErr
}
