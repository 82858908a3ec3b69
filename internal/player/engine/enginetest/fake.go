// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package enginetest provides a scripted engine for exercising the playback
// layer without real player processes.
package enginetest

import (
	"context"
	"sync"

	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/model"
)

// Fake is a scripted engine. Tests push events with Emit and inspect the
// calls the playback layer made.
type Fake struct {
	Backend model.Backend

	mu     sync.Mutex
	events chan engine.Event
	closed bool

	LoadedSource  *model.Source
	LoadErr       error
	PlayCalls     int
	PauseCalls    int
	Seeks         []float64
	Volumes       []float64
	Muted         []bool
	AudioSelects  []string
	SubSelects    []string
	AddedSubs     []engine.SideloadedSubtitle
	AddSubErr     error
	CloseCalls    int
	CloseObserver func()
}

// NewFake returns a fake engine reporting the given backend name.
func NewFake(b model.Backend) *Fake {
	return &Fake{
		Backend: b,
		events:  make(chan engine.Event, 64),
	}
}

// Factory returns an engine.Factory that hands out the given fakes in order.
func Factory(fakes ...*Fake) engine.Factory {
	i := 0
	var mu sync.Mutex
	return func(model.Backend) (engine.Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		f := fakes[i%len(fakes)]
		i++
		return f, nil
	}
}

// Emit pushes an event to the playback layer. Emitting after Close is a no-op
// so scripted callbacks that straggle past teardown are discarded, as the
// real engines do.
func (f *Fake) Emit(ev engine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

// Name implements engine.Engine.
func (f *Fake) Name() model.Backend { return f.Backend }

// Events implements engine.Engine.
func (f *Fake) Events() <-chan engine.Event { return f.events }

// Load implements engine.Engine.
func (f *Fake) Load(_ context.Context, src model.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.LoadedSource = &src
	return nil
}

// Play implements engine.Engine.
func (f *Fake) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PlayCalls++
	return nil
}

// Pause implements engine.Engine.
func (f *Fake) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PauseCalls++
	return nil
}

// Seek implements engine.Engine.
func (f *Fake) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Seeks = append(f.Seeks, seconds)
	return nil
}

// SetVolume implements engine.Engine.
func (f *Fake) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Volumes = append(f.Volumes, v)
	return nil
}

// SetMuted implements engine.Engine.
func (f *Fake) SetMuted(m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Muted = append(f.Muted, m)
	return nil
}

// SelectAudioTrack implements engine.Engine.
func (f *Fake) SelectAudioTrack(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AudioSelects = append(f.AudioSelects, id)
	return nil
}

// SelectSubtitleTrack implements engine.Engine.
func (f *Fake) SelectSubtitleTrack(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubSelects = append(f.SubSelects, id)
	return nil
}

// AddSubtitleTrack implements engine.Engine.
func (f *Fake) AddSubtitleTrack(sub engine.SideloadedSubtitle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddSubErr != nil {
		return f.AddSubErr
	}
	f.AddedSubs = append(f.AddedSubs, sub)
	return nil
}

// Close implements engine.Engine.
func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	if !f.closed {
		f.closed = true
		close(f.events)
		if f.CloseObserver != nil {
			f.CloseObserver()
		}
	}
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
