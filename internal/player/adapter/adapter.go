// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package adapter pumps normalized engine events into the playback state
// store and carries imperative controls back to the engine. Exactly one
// adapter owns a store at a time.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/ManuGH/playbackd/internal/subtitle"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// progressInterval coalesces raw engine progress callbacks; anything faster
// is dropped except the first update after a seek.
const progressInterval = 250 * time.Millisecond

// Hooks are optional observer callbacks. They run on the pump goroutine and
// must not block.
type Hooks struct {
	// OnReady fires once metadata is resolved and any start offset applied.
	OnReady func()
	// OnProgress fires for every progress update that passes the throttle.
	OnProgress func(position, duration float64)
	// OnEnd fires when the engine reports end of playback.
	OnEnd func()
	// OnError fires at most once, for the first unrecoverable engine error.
	OnError func(err error)
}

// Adapter binds one engine instance to one state store for the lifetime of a
// single attach.
type Adapter struct {
	eng       engine.Engine
	store     *state.Store
	src       model.Source
	hooks     Hooks
	artifacts *subtitle.Artifacts
	logger    zerolog.Logger
	limiter   *rate.Limiter

	mu           sync.Mutex
	detached     bool
	errored      bool
	passProgress bool // bypass the throttle once, set after load and seeks

	done chan struct{}
}

// Attach loads the source on the engine and starts the event pump. The store
// begins in loading state; the caller observes readiness via the store or the
// OnReady hook.
func Attach(ctx context.Context, eng engine.Engine, src model.Source, store *state.Store, artifacts *subtitle.Artifacts, hooks Hooks) (*Adapter, error) {
	a := &Adapter{
		eng:       eng,
		store:     store,
		src:       src,
		hooks:     hooks,
		artifacts: artifacts,
		logger: log.WithComponent("adapter").With().
			Str(log.FieldBackend, string(eng.Name())).Logger(),
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
		done:    make(chan struct{}),
	}

	store.SetLoading(true)
	if err := eng.Load(ctx, src); err != nil {
		store.SetError(err.Error())
		return nil, fmt.Errorf("adapter: load: %w", err)
	}

	go a.pump()
	return a, nil
}

// Engine exposes the bound engine. Used by the subtitle injector.
func (a *Adapter) Engine() engine.Engine { return a.eng }

// Source returns the immutable source of this attach.
func (a *Adapter) Source() model.Source { return a.src }

// pump drains the engine event stream until the engine closes it. Events
// that arrive after Detach are discarded without touching the store.
func (a *Adapter) pump() {
	defer close(a.done)

	for ev := range a.eng.Events() {
		a.mu.Lock()
		if a.detached {
			a.mu.Unlock()
			continue
		}
		a.handle(ev)
		a.mu.Unlock()
	}
}

// handle applies one event. Caller holds a.mu.
func (a *Adapter) handle(ev engine.Event) {
	switch ev.Kind {
	case engine.EvLoaded:
		a.store.SetProgress(ev.Position, ev.Duration)
		a.store.SetTracks(ev.Audio, ev.Subtitles)
		if a.src.StartTime > 0 {
			if err := a.eng.Seek(a.src.StartTime); err != nil {
				a.logger.Warn().Err(err).Float64("offset", a.src.StartTime).Msg("start offset seek failed")
			} else {
				a.store.SetProgress(a.src.StartTime, ev.Duration)
			}
		}
		a.store.SetLoading(false)
		a.passProgress = true
		a.logger.Info().Msg("engine loaded")
		if a.hooks.OnReady != nil {
			a.hooks.OnReady()
		}

	case engine.EvProgress:
		if !a.passProgress && !a.limiter.Allow() {
			return
		}
		a.passProgress = false
		a.store.SetProgress(ev.Position, ev.Duration)
		if a.hooks.OnProgress != nil {
			d := 0.0
			if ev.Duration != nil {
				d = *ev.Duration
			}
			a.hooks.OnProgress(ev.Position, d)
		}

	case engine.EvBuffering:
		a.store.SetBuffering(ev.Buffering)

	case engine.EvEnded:
		a.store.SetPlaying(false)
		a.logger.Info().Msg("playback ended")
		if a.hooks.OnEnd != nil {
			a.hooks.OnEnd()
		}

	case engine.EvError:
		if a.errored {
			return
		}
		a.errored = true
		msg := "playback failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		a.store.SetError(msg)
		a.store.SetPlaying(false)
		a.logger.Error().Err(ev.Err).Msg("engine error")
		if a.hooks.OnError != nil {
			a.hooks.OnError(ev.Err)
		}

	case engine.EvTracks:
		a.store.SetTracks(ev.Audio, ev.Subtitles)
	}
}

// Play starts or resumes local playback.
func (a *Adapter) Play() error {
	if err := a.eng.Play(); err != nil {
		return err
	}
	a.store.SetPlaying(true)
	return nil
}

// Pause suspends local playback.
func (a *Adapter) Pause() error {
	if err := a.eng.Pause(); err != nil {
		return err
	}
	a.store.SetPlaying(false)
	return nil
}

// Seek jumps to an absolute position. The next progress update bypasses the
// throttle so the discontinuity reaches the store immediately.
func (a *Adapter) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if err := a.eng.Seek(seconds); err != nil {
		return err
	}
	a.mu.Lock()
	a.passProgress = true
	a.mu.Unlock()
	return nil
}

// SetVolume clamps and forwards the volume, then records it.
func (a *Adapter) SetVolume(v float64) error {
	a.store.SetVolume(v)
	return a.eng.SetVolume(a.store.Snapshot().Volume)
}

// ToggleMute flips mute state on the engine and the store.
func (a *Adapter) ToggleMute() error {
	muted := a.store.ToggleMute()
	return a.eng.SetMuted(muted)
}

// SelectAudioTrack switches audio. Unknown ids are ignored.
func (a *Adapter) SelectAudioTrack(id string) error {
	if !a.store.SelectAudioTrack(id) {
		return nil
	}
	return a.eng.SelectAudioTrack(id)
}

// SelectSubtitleTrack switches subtitles; an empty id disables them. Unknown
// ids are ignored.
func (a *Adapter) SelectSubtitleTrack(id string) error {
	if !a.store.SelectSubtitleTrack(id) {
		return nil
	}
	return a.eng.SelectSubtitleTrack(id)
}

// AddSubtitleTrack injects a sideloaded caption file and records the new
// track.
func (a *Adapter) AddSubtitleTrack(sub engine.SideloadedSubtitle) error {
	if err := a.eng.AddSubtitleTrack(sub); err != nil {
		return err
	}
	a.store.AddSubtitleTrack(model.SubtitleTrack{
		ID:         sub.ID,
		Language:   sub.Language,
		Label:      sub.Label,
		Sideloaded: true,
	})
	return nil
}

// Detach tears the engine down and waits for the pump to drain. Sideloaded
// subtitle artifacts are revoked last. Idempotent.
func (a *Adapter) Detach(ctx context.Context) error {
	a.mu.Lock()
	already := a.detached
	a.detached = true
	a.mu.Unlock()

	err := a.eng.Close(ctx)

	select {
	case <-a.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	if !already && a.artifacts != nil {
		a.artifacts.RevokeAll()
	}
	if err != nil {
		return fmt.Errorf("adapter: detach: %w", err)
	}
	return nil
}
