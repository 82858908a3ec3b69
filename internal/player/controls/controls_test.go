// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package controls

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/playbackd/internal/cast"
	"github.com/ManuGH/playbackd/internal/player/adapter"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/engine/enginetest"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReceiver struct {
	plays, pauses, stops int
	seeks                []float64
	volumes              []float64
	mutes                []bool
}

func (r *recordingReceiver) Start(context.Context, cast.Media) error { return nil }
func (r *recordingReceiver) Stop(context.Context) error             { r.stops++; return nil }
func (r *recordingReceiver) Play(context.Context) error             { r.plays++; return nil }
func (r *recordingReceiver) Pause(context.Context) error            { r.pauses++; return nil }
func (r *recordingReceiver) Seek(_ context.Context, s float64) error {
	r.seeks = append(r.seeks, s)
	return nil
}
func (r *recordingReceiver) SetVolume(_ context.Context, v float64) error {
	r.volumes = append(r.volumes, v)
	return nil
}
func (r *recordingReceiver) SetMuted(_ context.Context, m bool) error {
	r.mutes = append(r.mutes, m)
	return nil
}

type fixture struct {
	fake   *enginetest.Fake
	store  *state.Store
	bridge *cast.Bridge
	recv   *recordingReceiver
	ad     *adapter.Adapter
	f      *Facade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := enginetest.NewFake(model.BackendMPV)
	st := state.New()
	src := model.Source{
		URL:         "http://provider.example/movie/u/p/1.mkv",
		ContentType: model.ContentMovie,
		ContentID:   "1",
		Title:       "One",
	}
	ad, err := adapter.Attach(context.Background(), fake, src, st, nil, adapter.Hooks{})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ad.Detach(ctx)
	})

	dur := 100.0
	fake.Emit(engine.Event{Kind: engine.EvLoaded, Duration: &dur})
	deadline := time.Now().Add(2 * time.Second)
	for st.Snapshot().IsLoading && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, st.Snapshot().IsLoading)

	recv := &recordingReceiver{}
	bridge := cast.NewBridge(recv, st)
	return &fixture{
		fake:   fake,
		store:  st,
		bridge: bridge,
		recv:   recv,
		ad:     ad,
		f:      New(st, bridge, func() *adapter.Adapter { return ad }),
	}
}

func TestLocalTransport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.f.Play(ctx))
	assert.True(t, fx.store.Snapshot().IsPlaying)

	require.NoError(t, fx.f.TogglePlay(ctx))
	assert.False(t, fx.store.Snapshot().IsPlaying)
	assert.Equal(t, 1, fx.fake.PauseCalls)

	require.NoError(t, fx.f.Seek(ctx, -5)) // clamped to zero
	assert.Equal(t, []float64{0}, fx.fake.Seeks)

	require.NoError(t, fx.f.SetVolume(ctx, 0.4))
	assert.Equal(t, []float64{0.4}, fx.fake.Volumes)
}

func TestSeekByUsesCurrentPosition(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.store.SetProgress(50, nil)
	require.NoError(t, fx.f.SeekBy(ctx, -10))
	assert.Equal(t, []float64{40}, fx.fake.Seeks)
}

func TestNoAdapterDuringRetry(t *testing.T) {
	st := state.New()
	f := New(st, nil, func() *adapter.Adapter { return nil })

	assert.ErrorIs(t, f.Play(context.Background()), ErrNoAdapter)
	assert.ErrorIs(t, f.Seek(context.Background(), 10), ErrNoAdapter)
}

func TestCastOverridesTransport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.f.Play(ctx))
	fx.store.SetProgress(33, nil)

	require.NoError(t, fx.f.StartCast(ctx))
	assert.True(t, fx.bridge.Connected())
	// local engine pauses when the session connects
	assert.Equal(t, 1, fx.fake.PauseCalls)

	playsBefore := fx.fake.PlayCalls
	require.NoError(t, fx.f.Play(ctx))
	require.NoError(t, fx.f.Pause(ctx))
	require.NoError(t, fx.f.Seek(ctx, 60))
	require.NoError(t, fx.f.SetVolume(ctx, 0.8))
	require.NoError(t, fx.f.ToggleMute(ctx))

	// everything went to the receiver, nothing to the local engine
	assert.Equal(t, playsBefore, fx.fake.PlayCalls)
	assert.Equal(t, 1, fx.recv.plays)
	assert.Equal(t, 1, fx.recv.pauses)
	assert.Equal(t, []float64{60}, fx.recv.seeks)
	assert.Equal(t, []float64{0.8}, fx.recv.volumes)
	assert.Equal(t, []bool{true}, fx.recv.mutes)
}

func TestStopCastRevertsToLocalPosition(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.store.SetProgress(33, nil)
	require.NoError(t, fx.f.StartCast(ctx))
	require.NoError(t, fx.f.Seek(ctx, 90)) // remote only

	require.NoError(t, fx.f.StopCast(ctx))
	assert.False(t, fx.bridge.Connected())

	// local position is untouched by the remote seek
	assert.Equal(t, 33.0, fx.store.Snapshot().Current)
	seeksBefore := len(fx.fake.Seeks)
	require.NoError(t, fx.f.Seek(ctx, 10))
	assert.Equal(t, seeksBefore+1, len(fx.fake.Seeks))
}

func TestTrackSelectionStaysLocalWhileCasting(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.store.SetTracks(
		[]model.AudioTrack{{ID: "a1", Language: "en"}},
		[]model.SubtitleTrack{{ID: "s1", Language: "de"}},
	)
	require.NoError(t, fx.f.StartCast(ctx))

	require.NoError(t, fx.f.SelectAudioTrack("a1"))
	require.NoError(t, fx.f.SelectSubtitleTrack("s1"))
	assert.Equal(t, []string{"a1"}, fx.fake.AudioSelects)
	assert.Equal(t, []string{"s1"}, fx.fake.SubSelects)
}
