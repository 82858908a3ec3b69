// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package controls exposes the uniform transport surface of one playback
// session. While a cast session is connected, transport commands target the
// receiver and the local engine stays paused.
package controls

import (
	"context"
	"errors"

	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/player/adapter"
	"github.com/ManuGH/playbackd/internal/player/state"
)

// ErrNoAdapter means the session has no attached engine, usually because a
// retry is rebuilding it.
var ErrNoAdapter = errors.New("controls: no engine attached")

// Facade routes transport commands to the active adapter or, when casting,
// to the cast bridge. One facade per session.
type Facade struct {
	store  *state.Store
	bridge *cast.Bridge

	adapter func() *adapter.Adapter
}

// New builds a facade. current returns the session's active adapter; it may
// return nil while a retry is in flight. bridge may be nil when casting is
// disabled.
func New(store *state.Store, bridge *cast.Bridge, current func() *adapter.Adapter) *Facade {
	return &Facade{store: store, bridge: bridge, adapter: current}
}

func (f *Facade) casting() bool {
	return f.bridge != nil && f.bridge.Connected()
}

func (f *Facade) local() (*adapter.Adapter, error) {
	a := f.adapter()
	if a == nil {
		return nil, ErrNoAdapter
	}
	return a, nil
}

// Play resumes playback on whichever target is active.
func (f *Facade) Play(ctx context.Context) error {
	if f.casting() {
		if err := f.bridge.Play(ctx); err != nil {
			return err
		}
		f.store.SetPlaying(true)
		return nil
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.Play()
}

// Pause suspends playback on whichever target is active.
func (f *Facade) Pause(ctx context.Context) error {
	if f.casting() {
		if err := f.bridge.Pause(ctx); err != nil {
			return err
		}
		f.store.SetPlaying(false)
		return nil
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.Pause()
}

// TogglePlay flips between play and pause based on the store.
func (f *Facade) TogglePlay(ctx context.Context) error {
	if f.store.Snapshot().IsPlaying {
		return f.Pause(ctx)
	}
	return f.Play(ctx)
}

// Seek jumps to an absolute position in seconds.
func (f *Facade) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if f.casting() {
		return f.bridge.Seek(ctx, seconds)
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.Seek(seconds)
}

// SeekBy jumps relative to the current position.
func (f *Facade) SeekBy(ctx context.Context, delta float64) error {
	return f.Seek(ctx, f.store.Snapshot().Current+delta)
}

// SetVolume adjusts volume on the active target. Values are clamped to
// [0,1], never rejected.
func (f *Facade) SetVolume(ctx context.Context, v float64) error {
	if f.casting() {
		f.store.SetVolume(v)
		return f.bridge.SetVolume(ctx, f.store.Snapshot().Volume)
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.SetVolume(v)
}

// ToggleMute flips mute on the active target.
func (f *Facade) ToggleMute(ctx context.Context) error {
	if f.casting() {
		return f.bridge.SetMuted(ctx, f.store.ToggleMute())
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.ToggleMute()
}

// SelectAudioTrack always targets the local engine; receivers manage their
// own track state.
func (f *Facade) SelectAudioTrack(id string) error {
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.SelectAudioTrack(id)
}

// SelectSubtitleTrack always targets the local engine. An empty id disables
// subtitles.
func (f *Facade) SelectSubtitleTrack(id string) error {
	a, err := f.local()
	if err != nil {
		return err
	}
	return a.SelectSubtitleTrack(id)
}

// StartCast hands playback to the receiver at the current local position.
// The local engine is paused underneath and keeps its position.
func (f *Facade) StartCast(ctx context.Context) error {
	if f.bridge == nil {
		return cast.ErrNotConnected
	}
	a, err := f.local()
	if err != nil {
		return err
	}
	src := a.Source()
	snap := f.store.Snapshot()
	media := cast.Media{
		URL:      src.URL,
		Title:    src.Title,
		Position: snap.Current,
		Live:     src.ContentType.Live(),
	}
	return f.bridge.Start(ctx, media, a.Pause)
}

// StopCast ends the cast session. Playback reverts to the local engine at
// whatever local position it was left at; remote position is not pulled
// back.
func (f *Facade) StopCast(ctx context.Context) error {
	if f.bridge == nil {
		return nil
	}
	return f.bridge.Stop(ctx)
}
