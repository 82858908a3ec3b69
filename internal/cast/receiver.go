// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cast routes playback control to an external receiver device while
// a cast session is connected.
package cast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Media describes what the receiver should load.
type Media struct {
	URL      string  `json:"url"`
	Title    string  `json:"title,omitempty"`
	Position float64 `json:"position,omitempty"`
	Live     bool    `json:"live,omitempty"`
}

// Receiver is the remote control surface of a cast target.
type Receiver interface {
	Start(ctx context.Context, media Media) error
	Stop(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume float64) error
	SetMuted(ctx context.Context, muted bool) error
}

// HTTPReceiver talks to a cast control endpoint over its JSON API.
type HTTPReceiver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReceiver builds a receiver client for the given control endpoint.
func NewHTTPReceiver(baseURL string, timeout time.Duration) *HTTPReceiver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReceiver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReceiver) post(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("cast: %s: %w", path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cast: %s: receiver returned %d", path, resp.StatusCode)
	}
	return nil
}

func (r *HTTPReceiver) Start(ctx context.Context, media Media) error {
	if media.URL == "" {
		return errors.New("cast: media URL required")
	}
	return r.post(ctx, "/v1/load", media)
}

func (r *HTTPReceiver) Stop(ctx context.Context) error {
	return r.post(ctx, "/v1/stop", nil)
}

func (r *HTTPReceiver) Play(ctx context.Context) error {
	return r.post(ctx, "/v1/play", nil)
}

func (r *HTTPReceiver) Pause(ctx context.Context) error {
	return r.post(ctx, "/v1/pause", nil)
}

func (r *HTTPReceiver) Seek(ctx context.Context, seconds float64) error {
	return r.post(ctx, "/v1/seek", map[string]float64{"position": seconds})
}

func (r *HTTPReceiver) SetVolume(ctx context.Context, volume float64) error {
	return r.post(ctx, "/v1/volume", map[string]float64{"level": volume})
}

func (r *HTTPReceiver) SetMuted(ctx context.Context, muted bool) error {
	return r.post(ctx, "/v1/mute", map[string]bool{"muted": muted})
}
