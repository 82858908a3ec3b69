// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package state owns the normalized playback state for one session.
//
// Exactly one adapter writes to a Store at a time; everything else only reads
// snapshots. Setters clamp invalid input instead of rejecting it and never
// panic, so engine callbacks can feed them without defensive checks.
package state

import (
	"math"
	"sync"

	"github.com/ManuGH/playbackd/internal/player/model"
)

// Snapshot is a point-in-time copy of the playback state.
type Snapshot struct {
	IsPlaying bool    `json:"isPlaying"`
	IsLoading bool    `json:"isLoading"`
	HasError  string  `json:"hasError,omitempty"`
	Current   float64 `json:"currentTime"`
	Duration  float64 `json:"duration"`
	Buffering bool    `json:"buffering"`
	Volume    float64 `json:"volume"`
	IsMuted   bool    `json:"isMuted"`

	AudioTracks        []model.AudioTrack    `json:"audioTracks,omitempty"`
	SelectedAudio      string                `json:"selectedAudioTrack,omitempty"`
	SubtitleTracks     []model.SubtitleTrack `json:"subtitleTracks,omitempty"`
	SelectedSubtitle   string                `json:"selectedSubtitleTrack,omitempty"`

	CastState model.CastState `json:"castState,omitempty"`
	IsCasting bool            `json:"isCasting"`
}

// Store is the mutable playback state behind the snapshot.
type Store struct {
	mu sync.RWMutex
	s  Snapshot
}

// New returns a store with the initial state a fresh session observes:
// loading, not playing, full volume.
func New() *Store {
	return &Store{s: Snapshot{
		IsLoading: true,
		Volume:    1.0,
		CastState: model.CastNotConnected,
	}}
}

// Snapshot returns a copy of the current state. Track slices are copied so
// callers cannot alias the store's internals.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := st.s
	out.AudioTracks = append([]model.AudioTrack(nil), st.s.AudioTracks...)
	out.SubtitleTracks = append([]model.SubtitleTrack(nil), st.s.SubtitleTracks...)
	return out
}

// SetPlaying updates the play/pause flag.
func (st *Store) SetPlaying(playing bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.IsPlaying = playing
}

// SetLoading updates the loading flag.
func (st *Store) SetLoading(loading bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.IsLoading = loading
}

// SetBuffering updates the buffering flag.
func (st *Store) SetBuffering(buffering bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Buffering = buffering
}

// SetError records an error message and forces loading off. An empty message
// clears the error.
func (st *Store) SetError(msg string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.HasError = msg
	st.s.IsLoading = false
}

// ClearError removes any recorded error.
func (st *Store) ClearError() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.HasError = ""
}

// SetProgress records the most recent position. The duration is only updated
// when the caller supplies one.
func (st *Store) SetProgress(current float64, duration *float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !isFinite(current) || current < 0 {
		current = 0
	}
	st.s.Current = current
	if duration != nil && isFinite(*duration) && *duration >= 0 {
		st.s.Duration = *duration
	}
}

// SetVolume stores the volume clamped to [0,1]. NaN clamps to 0.
func (st *Store) SetVolume(v float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Volume = clamp01(v)
}

// ToggleMute flips the mute flag and returns the new value.
func (st *Store) ToggleMute() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.IsMuted = !st.s.IsMuted
	return st.s.IsMuted
}

// SetTracks replaces the reported track lists. Selections referring to tracks
// that no longer exist are cleared.
func (st *Store) SetTracks(audio []model.AudioTrack, subs []model.SubtitleTrack) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.AudioTracks = append([]model.AudioTrack(nil), audio...)
	st.s.SubtitleTracks = append([]model.SubtitleTrack(nil), subs...)
	if st.s.SelectedAudio != "" && !hasAudio(st.s.AudioTracks, st.s.SelectedAudio) {
		st.s.SelectedAudio = ""
	}
	if st.s.SelectedSubtitle != "" && !hasSubtitle(st.s.SubtitleTracks, st.s.SelectedSubtitle) {
		st.s.SelectedSubtitle = ""
	}
}

// AddSubtitleTrack appends a sideloaded subtitle track to the list.
func (st *Store) AddSubtitleTrack(t model.SubtitleTrack) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.SubtitleTracks = append(st.s.SubtitleTracks, t)
}

// SelectAudioTrack records the selection. An identifier not present in the
// current track list is a no-op.
func (st *Store) SelectAudioTrack(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		st.s.SelectedAudio = ""
		return true
	}
	if !hasAudio(st.s.AudioTracks, id) {
		return false
	}
	st.s.SelectedAudio = id
	return true
}

// SelectSubtitleTrack records the selection. An empty identifier disables
// subtitles; an unknown identifier is a no-op.
func (st *Store) SelectSubtitleTrack(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		st.s.SelectedSubtitle = ""
		return true
	}
	if !hasSubtitle(st.s.SubtitleTracks, id) {
		return false
	}
	st.s.SelectedSubtitle = id
	return true
}

// SetCast updates the cast connection state.
func (st *Store) SetCast(cs model.CastState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.CastState = cs
	st.s.IsCasting = cs == model.CastConnected
}

// Apply merges a partial update under a single lock acquisition. The callback
// must not retain the snapshot pointer.
func (st *Store) Apply(fn func(*Snapshot)) {
	if fn == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
	st.s.Volume = clamp01(st.s.Volume)
}

func hasAudio(tracks []model.AudioTrack, id string) bool {
	for _, t := range tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func hasSubtitle(tracks []model.SubtitleTrack, id string) bool {
	for _, t := range tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
