// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/rs/zerolog"
)

const (
	hlsTickInterval  = 500 * time.Millisecond
	hlsMaxManifestKB = 4096
)

// HLSOptions configures the manifest engine.
type HLSOptions struct {
	// Client is the HTTP client used for playlist fetches. http.DefaultClient
	// when nil.
	Client *http.Client
}

// HLS is the manifest engine used for web clients. The actual media decoding
// happens renderer-side; this engine owns the session timeline: it resolves
// the playlist, derives duration and renditions, and advances the position
// clock while playing.
type HLS struct {
	opts HLSOptions
	log  zerolog.Logger

	events chan Event

	mu       sync.Mutex
	loaded   bool
	closed   bool
	playing  bool
	live     bool
	position float64
	duration float64
	sideSubs []model.SubtitleTrack
	dirty    bool // sideloaded tracks pending an EvTracks emit

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHLS constructs an unattached manifest engine.
func NewHLS(opts HLSOptions) *HLS {
	return &HLS{
		opts:   opts,
		log:    xglog.WithComponent("engine.hls"),
		events: make(chan Event, 16),
	}
}

// HLSFactory returns a Factory producing fresh HLS engines.
func HLSFactory(opts HLSOptions) Factory {
	return func(model.Backend) (Engine, error) {
		return NewHLS(opts), nil
	}
}

// Name implements Engine.
func (e *HLS) Name() model.Backend { return model.BackendHLS }

// Events implements Engine.
func (e *HLS) Events() <-chan Event { return e.events }

// Load implements Engine. It fetches and parses the playlist (following one
// level of master → variant indirection), then starts the timeline loop.
func (e *HLS) Load(ctx context.Context, src model.Source) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("hls: engine already attached")
	}
	e.loaded = true
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	manifest, err := e.resolve(ctx, src.URL)
	if err != nil {
		cancel()
		e.mu.Lock()
		e.loaded = false
		e.mu.Unlock()
		return err
	}

	duration := manifest.TotalDuration.Seconds()
	live := !manifest.IsVOD

	e.mu.Lock()
	e.duration = duration
	e.live = live
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(runCtx, manifest, live)
	return nil
}

// resolve fetches the playlist at rawURL; for a master playlist it descends
// into the first variant to obtain the timeline.
func (e *HLS) resolve(ctx context.Context, rawURL string) (*Manifest, error) {
	m, err := e.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !m.IsMaster || len(m.Variants) == 0 {
		return m, nil
	}

	variantURL, err := resolveRef(rawURL, m.Variants[0])
	if err != nil {
		return nil, fmt.Errorf("hls: variant url: %w", err)
	}
	media, err := e.fetch(ctx, variantURL)
	if err != nil {
		return nil, err
	}
	// Carry the master's renditions onto the media timeline.
	media.Audio = m.Audio
	media.Subtitles = m.Subtitles
	return media, nil
}

func (e *HLS) fetch(ctx context.Context, rawURL string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("hls: request: %w", err)
	}
	client := e.opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hls: fetch playlist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hls: playlist fetch returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, hlsMaxManifestKB*1024))
	if err != nil {
		return nil, fmt.Errorf("hls: read playlist: %w", err)
	}
	return ParseManifest(string(body))
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// run is the sole emitter of the event channel. It reports the load, then
// advances the position clock on every tick while playing.
func (e *HLS) run(ctx context.Context, m *Manifest, live bool) {
	defer e.wg.Done()
	defer close(e.events)

	loadEv := Event{Kind: EvLoaded, Audio: m.Audio, Subtitles: m.Subtitles}
	if !live {
		d := m.TotalDuration.Seconds()
		loadEv.Duration = &d
	}
	select {
	case e.events <- loadEv:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(hlsTickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now

			e.mu.Lock()
			if e.playing {
				e.position += elapsed
			}
			ended := false
			if !e.live && e.duration > 0 && e.position >= e.duration {
				e.position = e.duration
				if e.playing {
					e.playing = false
					ended = true
				}
			}
			ev := Event{Kind: EvProgress, Position: e.position}
			if !e.live {
				d := e.duration
				ev.Duration = &d
			}
			var tracksEv *Event
			if e.dirty {
				e.dirty = false
				subs := append(append([]model.SubtitleTrack(nil), m.Subtitles...), e.sideSubs...)
				tracksEv = &Event{Kind: EvTracks, Audio: m.Audio, Subtitles: subs}
			}
			e.mu.Unlock()

			select {
			case e.events <- ev:
			case <-ctx.Done():
				return
			}
			if tracksEv != nil {
				select {
				case e.events <- *tracksEv:
				case <-ctx.Done():
					return
				}
			}
			if ended {
				select {
				case e.events <- Event{Kind: EvEnded}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Play implements Engine.
func (e *HLS) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.playing = true
	return nil
}

// Pause implements Engine.
func (e *HLS) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.playing = false
	return nil
}

// Seek implements Engine.
func (e *HLS) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if seconds < 0 {
		seconds = 0
	}
	if !e.live && e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.position = seconds
	return nil
}

// SetVolume implements Engine. Volume is renderer-side for manifest playback;
// the engine only validates the session is alive.
func (e *HLS) SetVolume(float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// SetMuted implements Engine.
func (e *HLS) SetMuted(bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// SelectAudioTrack implements Engine.
func (e *HLS) SelectAudioTrack(string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// SelectSubtitleTrack implements Engine.
func (e *HLS) SelectSubtitleTrack(string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// AddSubtitleTrack implements Engine. The injected track is appended to the
// rendition list and announced on the next tick.
func (e *HLS) AddSubtitleTrack(sub SideloadedSubtitle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.sideSubs = append(e.sideSubs, model.SubtitleTrack{
		ID:         sub.ID,
		Language:   sub.Language,
		Label:      sub.Label,
		Sideloaded: true,
	})
	e.dirty = true
	return nil
}

// Close implements Engine.
func (e *HLS) Close(context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		loaded := e.loaded
		cancel := e.cancel
		e.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if !loaded {
			close(e.events)
			return
		}
		e.wg.Wait()
	})
	return nil
}
