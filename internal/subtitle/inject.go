// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package subtitle

import (
	"context"
	"fmt"
	"sync"

	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// InjectState names the phases of the fetch-then-inject flow. Transitions are
// linear; failed and applied are terminal for one Run.
type InjectState string

const (
	InjectIdle     InjectState = "idle"
	InjectProbing  InjectState = "probing"
	InjectFetching InjectState = "fetching"
	InjectApplying InjectState = "applying"
	InjectApplied  InjectState = "applied"
	InjectFailed   InjectState = "failed"
)

// EmbeddedLookup reports the languages of subtitle tracks already embedded in
// the stream. A nil lookup skips the probing phase.
type EmbeddedLookup func(ctx context.Context, streamURL string) ([]string, error)

// Injector runs the sideload flow for one playback session: probe for
// embedded captions, fetch SRT, convert to WebVTT, materialize the artifact
// and hand it to the engine.
type Injector struct {
	fetch     *Fetcher
	embedded  EmbeddedLookup
	artifacts *Artifacts
	log       zerolog.Logger

	mu    sync.Mutex
	state InjectState
}

// NewInjector wires an injector. artifacts must be the session's tracked list
// so teardown revokes whatever Run materialized.
func NewInjector(fetch *Fetcher, embedded EmbeddedLookup, artifacts *Artifacts) *Injector {
	return &Injector{
		fetch:     fetch,
		embedded:  embedded,
		artifacts: artifacts,
		log:       xglog.WithComponent("subtitle.injector"),
		state:     InjectIdle,
	}
}

// State returns the current phase.
func (in *Injector) State() InjectState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

func (in *Injector) transition(to InjectState) {
	in.mu.Lock()
	from := in.state
	in.state = to
	in.mu.Unlock()
	in.log.Debug().
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("inject transition")
}

// TrackSink receives the injected caption track. Satisfied by engines and by
// the adapter, which additionally records the track in the state store.
type TrackSink interface {
	AddSubtitleTrack(sub engine.SideloadedSubtitle) error
}

// Run executes the flow for src in the preferred language. It returns whether
// a track was injected. Any error is the caller's to downgrade: subtitle
// enrichment must never block playback.
func (in *Injector) Run(ctx context.Context, eng TrackSink, src model.Source, preferred string) (bool, error) {
	if src.ContentType == model.ContentLive {
		return false, nil // live channels carry no sideloadable captions
	}

	if in.embedded != nil {
		in.transition(InjectProbing)
		langs, err := in.embedded(ctx, src.URL)
		if err != nil {
			in.log.Warn().Err(err).Msg("embedded-track probe failed, continuing with sideload")
		} else if matchesLanguage(langs, preferred) {
			in.transition(InjectIdle)
			return false, nil // embedded track already covers the language
		}
	}

	in.transition(InjectFetching)
	srt, err := in.fetch.Fetch(ctx, src.ContentID, src.ContentType, preferred)
	if err != nil {
		in.transition(InjectFailed)
		return false, fmt.Errorf("fetch: %w", err)
	}

	in.transition(InjectApplying)
	vtt, err := ConvertSRTToVTT(srt)
	if err != nil {
		in.transition(InjectFailed)
		return false, fmt.Errorf("convert: %w", err)
	}
	path, err := in.artifacts.Materialize(preferred+".vtt", vtt)
	if err != nil {
		in.transition(InjectFailed)
		return false, fmt.Errorf("materialize: %w", err)
	}

	sub := engine.SideloadedSubtitle{
		ID:       "sideload-" + preferred,
		Language: preferred,
		Label:    preferred,
		Path:     path,
	}
	if err := eng.AddSubtitleTrack(sub); err != nil {
		in.transition(InjectFailed)
		return false, fmt.Errorf("apply: %w", err)
	}

	in.transition(InjectApplied)
	return true, nil
}

// matchesLanguage reports whether any of the BCP-47-ish tags covers the
// preferred language. Tags that fail to parse are compared verbatim.
func matchesLanguage(have []string, preferred string) bool {
	want, werr := language.Parse(preferred)
	for _, h := range have {
		if h == "" {
			continue
		}
		if h == preferred {
			return true
		}
		if werr != nil {
			continue
		}
		got, err := language.Parse(h)
		if err != nil {
			continue
		}
		wantBase, _ := want.Base()
		gotBase, _ := got.Base()
		if wantBase == gotBase {
			return true
		}
	}
	return false
}
