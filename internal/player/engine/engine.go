// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine defines the narrow contract every concrete playback engine
// implements, plus the policy that picks one for a given source.
//
// Engines translate their native callback surface into the tagged Event
// union; nothing above this package ever inspects engine-specific shapes.
package engine

import (
	"context"
	"errors"

	"github.com/ManuGH/playbackd/internal/player/model"
)

// EventKind discriminates the normalized engine event union.
type EventKind int

const (
	EvUnknown EventKind = iota
	// EvLoaded fires once metadata is resolved: duration and track lists are
	// populated.
	EvLoaded
	// EvProgress carries the current position and, when known, the duration.
	EvProgress
	// EvBuffering signals the engine stalling on data (true) or recovering
	// (false).
	EvBuffering
	// EvEnded fires when playback reaches the end of the source.
	EvEnded
	// EvError signals an unrecoverable engine failure.
	EvError
	// EvTracks carries an updated track list after the initial load.
	EvTracks
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EvLoaded:
		return "loaded"
	case EvProgress:
		return "progress"
	case EvBuffering:
		return "buffering"
	case EvEnded:
		return "ended"
	case EvError:
		return "error"
	case EvTracks:
		return "tracks"
	default:
		return "unknown"
	}
}

// Event is the normalized union of engine callbacks. Only the fields relevant
// to the Kind are populated.
type Event struct {
	Kind EventKind

	// EvProgress / EvLoaded
	Position float64
	// Duration is nil when the engine does not know it (live content).
	Duration *float64

	// EvBuffering
	Buffering bool

	// EvError
	Err error

	// EvLoaded / EvTracks
	Audio     []model.AudioTrack
	Subtitles []model.SubtitleTrack
}

// SideloadedSubtitle is a locally materialized caption file handed to an
// engine for injection.
type SideloadedSubtitle struct {
	ID       string
	Language string
	Label    string
	// Path points at the WebVTT artifact on disk.
	Path string
}

// ErrClosed is returned by engine operations after Close.
var ErrClosed = errors.New("engine: closed")

// Engine is implemented by each concrete playback engine. An Engine instance
// is scoped to a single attach: Load may be called at most once, and Close
// must release every resource the engine acquired, even mid-load.
type Engine interface {
	// Name identifies the backend this engine implements.
	Name() model.Backend

	// Load starts loading the source. It returns once loading has begun;
	// completion and failure are reported through Events.
	Load(ctx context.Context, src model.Source) error

	// Events returns the normalized event stream. The channel is closed by
	// Close after the last event has been delivered.
	Events() <-chan Event

	Play() error
	Pause() error
	// Seek jumps to an absolute position in seconds.
	Seek(seconds float64) error
	// SetVolume expects a value in [0,1].
	SetVolume(v float64) error
	SetMuted(muted bool) error

	// SelectAudioTrack switches to the given engine track id.
	SelectAudioTrack(id string) error
	// SelectSubtitleTrack switches subtitle tracks; an empty id disables
	// subtitles.
	SelectSubtitleTrack(id string) error
	// AddSubtitleTrack injects a sideloaded caption file.
	AddSubtitleTrack(sub SideloadedSubtitle) error

	// Close tears the engine down. It is idempotent, best-effort and must
	// not block past ctx.
	Close(ctx context.Context) error
}

// Factory constructs a fresh engine instance for one attach. Retry flows rely
// on factories so a failed engine is rebuilt from scratch rather than reused.
type Factory func(backend model.Backend) (Engine, error)
