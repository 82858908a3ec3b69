// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package probe

import (
	"context"
	"time"

	"github.com/ManuGH/playbackd/internal/cache"
	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prober fronts the detection client with a cache and request collapsing:
// each distinct URL is probed at most once per TTL, and concurrent callers
// for the same URL share one in-flight request.
type Prober struct {
	client *Client
	local  cache.Cache[*Result]
	shared cache.Cache[Result] // optional cross-instance tier (redis)
	ttl    time.Duration
	group  singleflight.Group
	log    zerolog.Logger
}

// ProberOptions configures the cached prober.
type ProberOptions struct {
	// TTL bounds how long a probe result is reused. Defaults to 1h.
	TTL time.Duration
	// Shared is an optional second cache tier shared between instances.
	Shared cache.Cache[Result]
}

// NewProber wraps client with session-scoped caching.
func NewProber(client *Client, opts ProberOptions) *Prober {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Prober{
		client: client,
		local:  cache.NewMemory[*Result](10 * time.Minute),
		shared: opts.Shared,
		ttl:    ttl,
		log:    xglog.WithComponent("probe"),
	}
}

// Probe returns the analysis for streamURL, from cache when possible.
func (p *Prober) Probe(ctx context.Context, streamURL string, quickScan bool) (*Result, error) {
	if r, ok := p.local.Get(streamURL); ok {
		return r, nil
	}
	if p.shared != nil {
		if r, ok := p.shared.Get(streamURL); ok {
			out := r
			p.local.Set(streamURL, &out, p.ttl)
			return &out, nil
		}
	}

	v, err, _ := p.group.Do(streamURL, func() (any, error) {
		r, err := p.client.Detect(ctx, streamURL, quickScan)
		if err != nil {
			return nil, err
		}
		p.local.Set(streamURL, r, p.ttl)
		if p.shared != nil {
			p.shared.Set(streamURL, *r, p.ttl)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Close stops the local cache's janitor.
func (p *Prober) Close() {
	if s, ok := p.local.(interface{ Stop() }); ok {
		s.Stop()
	}
}

// EmbeddedSubtitleLanguages lists the languages of embedded subtitle tracks,
// for use by the subtitle injection flow. Errors are returned so callers can
// decide how loudly to ignore them.
func (p *Prober) EmbeddedSubtitleLanguages(ctx context.Context, streamURL string) ([]string, error) {
	r, err := p.Probe(ctx, streamURL, true)
	if err != nil {
		return nil, err
	}
	langs := make([]string, 0, len(r.SubtitleTracks))
	for _, t := range r.SubtitleTracks {
		langs = append(langs, t.Language)
	}
	return langs, nil
}
