// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cast

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	startErr error
	started  []Media
	stops    int
	plays    int
	pauses   int
	seeks    []float64
	volumes  []float64
	mutes    []bool
}

func (f *fakeReceiver) Start(_ context.Context, m Media) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, m)
	return nil
}
func (f *fakeReceiver) Stop(context.Context) error  { f.stops++; return nil }
func (f *fakeReceiver) Play(context.Context) error  { f.plays++; return nil }
func (f *fakeReceiver) Pause(context.Context) error { f.pauses++; return nil }
func (f *fakeReceiver) Seek(_ context.Context, s float64) error {
	f.seeks = append(f.seeks, s)
	return nil
}
func (f *fakeReceiver) SetVolume(_ context.Context, v float64) error {
	f.volumes = append(f.volumes, v)
	return nil
}
func (f *fakeReceiver) SetMuted(_ context.Context, m bool) error {
	f.mutes = append(f.mutes, m)
	return nil
}

func TestNilReceiverMeansNoDevices(t *testing.T) {
	st := state.New()
	b := NewBridge(nil, st)

	assert.Equal(t, model.CastNoDevices, b.State())
	assert.Equal(t, model.CastNoDevices, st.Snapshot().CastState)
	assert.ErrorIs(t, b.Start(context.Background(), Media{URL: "http://x/1.m3u8"}, nil), ErrNotConnected)
}

func TestStartConnectsAndPausesLocal(t *testing.T) {
	st := state.New()
	recv := &fakeReceiver{}
	b := NewBridge(recv, st)

	paused := false
	err := b.Start(context.Background(), Media{URL: "http://x/1.m3u8", Title: "One"}, func() error {
		paused = true
		return nil
	})
	require.NoError(t, err)

	assert.True(t, paused)
	assert.True(t, b.Connected())
	snap := st.Snapshot()
	assert.True(t, snap.IsCasting)
	assert.Equal(t, model.CastConnected, snap.CastState)
	require.Len(t, recv.started, 1)
	assert.Equal(t, "One", recv.started[0].Title)
}

func TestStartFailureRevertsState(t *testing.T) {
	st := state.New()
	recv := &fakeReceiver{startErr: errors.New("receiver down")}
	b := NewBridge(recv, st)

	err := b.Start(context.Background(), Media{URL: "http://x/1.m3u8"}, nil)
	require.Error(t, err)
	assert.Equal(t, model.CastNotConnected, b.State())
	assert.False(t, st.Snapshot().IsCasting)
}

func TestRemoteControlsRequireConnection(t *testing.T) {
	st := state.New()
	b := NewBridge(&fakeReceiver{}, st)

	assert.ErrorIs(t, b.Play(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, b.Seek(context.Background(), 10), ErrNotConnected)
	assert.ErrorIs(t, b.SetVolume(context.Background(), 0.5), ErrNotConnected)
}

func TestRemoteControlsForward(t *testing.T) {
	st := state.New()
	recv := &fakeReceiver{}
	b := NewBridge(recv, st)
	ctx := context.Background()

	require.NoError(t, b.Start(ctx, Media{URL: "http://x/1.m3u8"}, nil))
	require.NoError(t, b.Play(ctx))
	require.NoError(t, b.Pause(ctx))
	require.NoError(t, b.Seek(ctx, 42))
	require.NoError(t, b.SetVolume(ctx, 0.7))
	require.NoError(t, b.SetMuted(ctx, true))

	assert.Equal(t, 1, recv.plays)
	assert.Equal(t, 1, recv.pauses)
	assert.Equal(t, []float64{42}, recv.seeks)
	assert.Equal(t, []float64{0.7}, recv.volumes)
	assert.Equal(t, []bool{true}, recv.mutes)
}

func TestStopRevertsToLocal(t *testing.T) {
	st := state.New()
	recv := &fakeReceiver{}
	b := NewBridge(recv, st)
	ctx := context.Background()

	require.NoError(t, b.Start(ctx, Media{URL: "http://x/1.m3u8"}, nil))
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Stop(ctx)) // idempotent

	assert.Equal(t, 1, recv.stops)
	assert.Equal(t, model.CastNotConnected, b.State())
	assert.False(t, st.Snapshot().IsCasting)
}
