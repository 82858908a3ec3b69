// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model holds the value types shared across the playback layer.
// It is decoupled from the HTTP DTOs to maintain clean layering.
package model

import (
	"fmt"
	"strings"
)

// ContentType describes what kind of item a source refers to.
type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
	ContentLive   ContentType = "live"
)

// Valid reports whether the content type is one of the known values.
func (c ContentType) Valid() bool {
	switch c {
	case ContentMovie, ContentSeries, ContentLive:
		return true
	}
	return false
}

// Live reports whether the content has no fixed duration.
func (c ContentType) Live() bool { return c == ContentLive }

// Platform identifies the class of client driving a session.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformNative Platform = "native"
	PlatformTV     Platform = "tv"
)

// Valid reports whether the platform is one of the known values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformNative, PlatformTV:
		return true
	}
	return false
}

// Backend identifies a concrete playback engine.
type Backend string

const (
	// BackendAuto lets the selection policy decide.
	BackendAuto Backend = "auto"
	// BackendHLS is the adaptive-manifest engine used for web clients.
	BackendHLS Backend = "hls"
	// BackendMPV is the general-purpose native engine.
	BackendMPV Backend = "mpv"
	// BackendVLC is the dedicated engine routed to for matroska content.
	BackendVLC Backend = "vlc"
)

// Source describes one playable item. It is immutable for the lifetime of a
// playback session.
type Source struct {
	URL         string
	ContentType ContentType
	ContentID   string
	Title       string
	// StartTime is the offset in seconds playback should begin at.
	StartTime float64
}

// Validate checks the fields a session cannot be created without.
func (s Source) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("source: missing url")
	}
	if !s.ContentType.Valid() {
		return fmt.Errorf("source: invalid content type %q", s.ContentType)
	}
	if s.StartTime < 0 {
		return fmt.Errorf("source: negative start time %f", s.StartTime)
	}
	return nil
}

// Extension returns the lower-cased file extension of the source URL without
// the leading dot, ignoring any query string.
func (s Source) Extension() string {
	u := s.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	i := strings.LastIndexByte(u, '.')
	if i < 0 || i == len(u)-1 {
		return ""
	}
	ext := u[i+1:]
	if strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return strings.ToLower(ext)
}

// AudioTrack describes one selectable audio track reported by an engine.
type AudioTrack struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Label    string `json:"label,omitempty"`
}

// SubtitleTrack describes one selectable subtitle track reported by an engine.
type SubtitleTrack struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Label    string `json:"label,omitempty"`
	// Sideloaded marks tracks injected by the subtitle pipeline rather than
	// embedded in the stream.
	Sideloaded bool `json:"sideloaded,omitempty"`
}

// CastState mirrors the connection state of an external receiver session.
type CastState string

const (
	CastNoDevices    CastState = "no_devices"
	CastNotConnected CastState = "not_connected"
	CastConnecting   CastState = "connecting"
	CastConnected    CastState = "connected"
)
