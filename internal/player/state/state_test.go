// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package state

import (
	"math"
	"sync"
	"testing"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVolumeClamps(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 0.5, 0.5},
		{"zero", 0, 0},
		{"one", 1, 1},
		{"above", 1.7, 1},
		{"below", -0.3, 0},
		{"nan", math.NaN(), 0},
		{"pos inf", math.Inf(1), 1},
		{"neg inf", math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := New()
			st.SetVolume(tt.in)
			assert.Equal(t, tt.want, st.Snapshot().Volume)
		})
	}
}

func TestSetErrorForcesLoadingOff(t *testing.T) {
	st := New()
	st.SetLoading(true)
	st.SetError("decode failed")

	snap := st.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "decode failed", snap.HasError)

	st.ClearError()
	assert.Empty(t, st.Snapshot().HasError)
}

func TestSetProgressKeepsLastDuration(t *testing.T) {
	st := New()
	d := 120.0
	st.SetProgress(10, &d)
	st.SetProgress(15, nil)
	st.SetProgress(20, nil)

	snap := st.Snapshot()
	assert.Equal(t, 20.0, snap.Current)
	assert.Equal(t, 120.0, snap.Duration)

	d2 := 150.0
	st.SetProgress(25, &d2)
	snap = st.Snapshot()
	assert.Equal(t, 25.0, snap.Current)
	assert.Equal(t, 150.0, snap.Duration)
}

func TestSetProgressRejectsGarbagePosition(t *testing.T) {
	st := New()
	st.SetProgress(math.NaN(), nil)
	assert.Equal(t, 0.0, st.Snapshot().Current)
}

func TestSubtitleSelection(t *testing.T) {
	st := New()
	st.SetTracks(nil, []model.SubtitleTrack{
		{ID: "s1", Language: "en"},
		{ID: "s2", Language: "de"},
	})

	require.True(t, st.SelectSubtitleTrack("s2"))
	assert.Equal(t, "s2", st.Snapshot().SelectedSubtitle)

	// unknown id is a no-op
	assert.False(t, st.SelectSubtitleTrack("nope"))
	assert.Equal(t, "s2", st.Snapshot().SelectedSubtitle)

	// empty id disables subtitles
	require.True(t, st.SelectSubtitleTrack(""))
	assert.Empty(t, st.Snapshot().SelectedSubtitle)
}

func TestAudioSelectionUnknownIsNoop(t *testing.T) {
	st := New()
	st.SetTracks([]model.AudioTrack{{ID: "a1", Language: "en"}}, nil)

	require.True(t, st.SelectAudioTrack("a1"))
	assert.False(t, st.SelectAudioTrack("a9"))
	assert.Equal(t, "a1", st.Snapshot().SelectedAudio)
}

func TestSetTracksClearsDanglingSelection(t *testing.T) {
	st := New()
	st.SetTracks(nil, []model.SubtitleTrack{{ID: "s1", Language: "en"}})
	require.True(t, st.SelectSubtitleTrack("s1"))

	st.SetTracks(nil, []model.SubtitleTrack{{ID: "s9", Language: "fr"}})
	assert.Empty(t, st.Snapshot().SelectedSubtitle)
}

func TestSnapshotCopiesTrackSlices(t *testing.T) {
	st := New()
	st.SetTracks([]model.AudioTrack{{ID: "a1"}}, nil)

	snap := st.Snapshot()
	snap.AudioTracks[0].ID = "mutated"
	assert.Equal(t, "a1", st.Snapshot().AudioTracks[0].ID)
}

func TestToggleMute(t *testing.T) {
	st := New()
	assert.True(t, st.ToggleMute())
	assert.False(t, st.ToggleMute())
}

func TestApplyClampsVolume(t *testing.T) {
	st := New()
	st.Apply(func(s *Snapshot) {
		s.Volume = 4
		s.Buffering = true
	})
	snap := st.Snapshot()
	assert.Equal(t, 1.0, snap.Volume)
	assert.True(t, snap.Buffering)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			st.SetProgress(float64(i), nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = st.Snapshot()
		}
	}()
	wg.Wait()
	assert.Equal(t, 499.0, st.Snapshot().Current)
}
