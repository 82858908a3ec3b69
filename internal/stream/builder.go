// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stream builds provider streaming URLs from content identity and
// credentials.
package stream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ManuGH/playbackd/internal/player/model"
)

// ErrMissingCredentials means the provider is not configured; a session
// cannot be created from a bare content id.
var ErrMissingCredentials = errors.New("stream: provider credentials not configured")

// Builder constructs Xtream-style streaming URLs. Live channels serve HLS
// playlists, VOD items keep their container extension.
type Builder struct {
	baseURL  string
	username string
	password string
}

// NewBuilder validates the provider base URL once up front.
func NewBuilder(baseURL, username, password string) (*Builder, error) {
	if baseURL == "" {
		return nil, errors.New("stream: provider base URL required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("stream: invalid provider URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("stream: unsupported scheme %q", u.Scheme)
	}
	return &Builder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}, nil
}

// URL returns the streaming URL for one content item. ext is the container
// extension without the dot; live content ignores it and always gets m3u8.
func (b *Builder) URL(contentType model.ContentType, contentID, ext string) (string, error) {
	if b.username == "" || b.password == "" {
		return "", ErrMissingCredentials
	}
	if contentID == "" {
		return "", errors.New("stream: content id required")
	}

	switch contentType {
	case model.ContentLive:
		return fmt.Sprintf("%s/live/%s/%s/%s.m3u8",
			b.baseURL, url.PathEscape(b.username), url.PathEscape(b.password), url.PathEscape(contentID)), nil
	case model.ContentMovie:
		if ext == "" {
			ext = "mp4"
		}
		return fmt.Sprintf("%s/movie/%s/%s/%s.%s",
			b.baseURL, url.PathEscape(b.username), url.PathEscape(b.password), url.PathEscape(contentID), ext), nil
	case model.ContentSeries:
		if ext == "" {
			ext = "mp4"
		}
		return fmt.Sprintf("%s/series/%s/%s/%s.%s",
			b.baseURL, url.PathEscape(b.username), url.PathEscape(b.password), url.PathEscape(contentID), ext), nil
	default:
		return "", fmt.Errorf("stream: unknown content type %q", contentType)
	}
}

// Source builds a full playback source for one item.
func (b *Builder) Source(contentType model.ContentType, contentID, ext, title string) (model.Source, error) {
	u, err := b.URL(contentType, contentID, ext)
	if err != nil {
		return model.Source{}, err
	}
	return model.Source{
		URL:         u,
		ContentType: contentType,
		ContentID:   contentID,
		Title:       title,
	}, nil
}
