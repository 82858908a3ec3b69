// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"testing"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	allNative := CapabilitySet{
		model.BackendHLS: true,
		model.BackendMPV: true,
		model.BackendVLC: true,
	}
	noVLC := CapabilitySet{
		model.BackendHLS: true,
		model.BackendMPV: true,
	}

	tests := []struct {
		name     string
		url      string
		platform model.Platform
		pref     model.Backend
		caps     Capabilities
		want     model.Backend
	}{
		{"explicit pref wins", "http://srv/movie/1.mkv", model.PlatformWeb, model.BackendMPV, allNative, model.BackendMPV},
		{"auto pref falls through", "http://srv/movie/1.ts", model.PlatformWeb, model.BackendAuto, allNative, model.BackendHLS},
		{"web always manifest", "http://srv/movie/1.mkv", model.PlatformWeb, "", allNative, model.BackendHLS},
		{"native mkv dedicated", "http://srv/movie/1.mkv", model.PlatformNative, "", allNative, model.BackendVLC},
		{"native mkv without dedicated", "http://srv/movie/1.mkv", model.PlatformNative, "", noVLC, model.BackendMPV},
		{"tv mkv without dedicated", "http://srv/movie/1.mkv", model.PlatformTV, "", noVLC, model.BackendMPV},
		{"native mp4 general purpose", "http://srv/movie/1.mp4", model.PlatformNative, "", allNative, model.BackendMPV},
		{"query string ignored", "http://srv/movie/1.mkv?token=abc", model.PlatformNative, "", allNative, model.BackendVLC},
		{"nil caps never dedicated", "http://srv/movie/1.mkv", model.PlatformNative, "", nil, model.BackendMPV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := model.Source{URL: tt.url, ContentType: model.ContentMovie}
			got := Select(src, tt.platform, tt.pref, tt.caps)
			assert.Equal(t, tt.want, got)
		})
	}
}

// A live channel with a mkv-suffixed URL on a native platform where the
// dedicated engine is unavailable must fall back to the general-purpose
// native engine.
func TestSelectLiveMkvFallback(t *testing.T) {
	src := model.Source{URL: "http://srv/live/7.mkv", ContentType: model.ContentLive}
	got := Select(src, model.PlatformNative, model.BackendAuto, CapabilitySet{model.BackendMPV: true})
	assert.Equal(t, model.BackendMPV, got)
}

func TestSourceExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://srv/a/b.MKV", "mkv"},
		{"http://srv/a/b.mp4?x=1.avi", "mp4"},
		{"http://srv/a/b", ""},
		{"http://srv/a.b/c", ""},
		{"http://srv/a/b.", ""},
	}
	for _, tt := range tests {
		src := model.Source{URL: tt.url}
		assert.Equal(t, tt.want, src.Extension(), tt.url)
	}
}
