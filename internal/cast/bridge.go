// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cast

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/player/state"
	"github.com/rs/zerolog"
)

// ErrNotConnected means a remote control call arrived with no live cast
// session.
var ErrNotConnected = errors.New("cast: no session connected")

// Bridge owns the cast session state for one playback session. While
// connected, transport commands go to the receiver and the local engine stays
// paused; when the session ends, control reverts to the local engine at its
// last local position. Remote position is not synchronized back.
type Bridge struct {
	mu        sync.Mutex
	castState model.CastState
	receiver  Receiver
	store     *state.Store
	logger    zerolog.Logger
}

// NewBridge starts disconnected. A nil receiver means no device is reachable
// at all and the bridge stays in the no-devices state.
func NewBridge(receiver Receiver, store *state.Store) *Bridge {
	cs := model.CastNotConnected
	if receiver == nil {
		cs = model.CastNoDevices
	}
	b := &Bridge{
		castState: cs,
		receiver:  receiver,
		store:     store,
		logger:    log.WithComponent("cast"),
	}
	store.SetCast(cs)
	return b
}

// State returns the current session state.
func (b *Bridge) State() model.CastState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.castState
}

// Connected reports whether transport commands should target the receiver.
func (b *Bridge) Connected() bool {
	return b.State() == model.CastConnected
}

func (b *Bridge) transition(cs model.CastState) {
	old := b.castState
	b.castState = cs
	b.store.SetCast(cs)
	b.logger.Info().
		Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(cs)).
		Msg("cast state changed")
}

// Start loads media on the receiver. pauseLocal is invoked once the session
// is connected so the local engine does not keep decoding underneath.
func (b *Bridge) Start(ctx context.Context, media Media, pauseLocal func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.receiver == nil {
		return ErrNotConnected
	}
	if b.castState == model.CastConnected || b.castState == model.CastConnecting {
		return errors.New("cast: session already active")
	}

	b.transition(model.CastConnecting)
	if err := b.receiver.Start(ctx, media); err != nil {
		b.transition(model.CastNotConnected)
		return err
	}
	b.transition(model.CastConnected)

	if pauseLocal != nil {
		if err := pauseLocal(); err != nil {
			b.logger.Warn().Err(err).Msg("pause local engine after cast connect")
		}
	}
	return nil
}

// Stop ends the cast session. The local engine stays paused at its last
// local position; resuming is the caller's decision.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.castState != model.CastConnected && b.castState != model.CastConnecting {
		return nil
	}
	err := b.receiver.Stop(ctx)
	b.transition(model.CastNotConnected)
	return err
}

func (b *Bridge) remote() (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.castState != model.CastConnected {
		return nil, ErrNotConnected
	}
	return b.receiver, nil
}

// Play resumes remote playback.
func (b *Bridge) Play(ctx context.Context) error {
	r, err := b.remote()
	if err != nil {
		return err
	}
	return r.Play(ctx)
}

// Pause pauses remote playback.
func (b *Bridge) Pause(ctx context.Context) error {
	r, err := b.remote()
	if err != nil {
		return err
	}
	return r.Pause(ctx)
}

// Seek repositions remote playback.
func (b *Bridge) Seek(ctx context.Context, seconds float64) error {
	r, err := b.remote()
	if err != nil {
		return err
	}
	return r.Seek(ctx, seconds)
}

// SetVolume adjusts the receiver volume.
func (b *Bridge) SetVolume(ctx context.Context, volume float64) error {
	r, err := b.remote()
	if err != nil {
		return err
	}
	return r.SetVolume(ctx, volume)
}

// SetMuted mutes or unmutes the receiver.
func (b *Bridge) SetMuted(ctx context.Context, muted bool) error {
	r, err := b.remote()
	if err != nil {
		return err
	}
	return r.SetMuted(ctx, muted)
}
