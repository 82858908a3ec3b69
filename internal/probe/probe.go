// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package probe asks the remote analysis service about a stream's container
// and embedded tracks, and classifies how well clients can play it.
//
// Probe results are advisory: they decide which affordances a client shows,
// never how playback behaves. Failures here must not block a session.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/playbackd/internal/resilience"
)

// TrackInfo describes one embedded track as reported by the service.
type TrackInfo struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Title    string `json:"title,omitempty"`
}

// Result is the service's view of one stream URL.
type Result struct {
	ContainerFormat        string      `json:"containerFormat"`
	HasEmbeddedSubtitles   bool        `json:"hasEmbeddedSubtitles"`
	HasMultipleAudioTracks bool        `json:"hasMultipleAudioTracks"`
	SubtitleTracks         []TrackInfo `json:"subtitleTracks"`
	AudioTracks            []TrackInfo `json:"audioTracks"`
}

// detectRequest is the wire request for the detection endpoint.
type detectRequest struct {
	StreamURL string `json:"streamUrl"`
	QuickScan bool   `json:"quickScan"`
}

// detectResponse is the wire response for the detection endpoint.
type detectResponse struct {
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	StreamInfo *Result `json:"streamInfo,omitempty"`
}

// Client calls the remote detect-embedded-tracks service. A circuit breaker
// shields session starts from a flapping service: when it opens, probes fail
// fast and playback proceeds without format hints.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewClient constructs a prober client. A nil httpClient gets a 15s-timeout
// default, since probe calls sit on the session-start path.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		breaker: resilience.NewCircuitBreaker("probe", 5, 30*time.Second),
	}
}

// Detect performs one analysis round-trip for streamURL.
func (c *Client) Detect(ctx context.Context, streamURL string, quickScan bool) (*Result, error) {
	body, err := json.Marshal(detectRequest{StreamURL: streamURL, QuickScan: quickScan})
	if err != nil {
		return nil, fmt.Errorf("probe: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/detect-embedded-tracks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Only transport-level trouble trips the breaker; a well-formed
	// failure response means the service is alive.
	var raw []byte
	err = c.breaker.Execute(func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("probe: call service: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("probe: service returned %d", resp.StatusCode)
		}

		raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("probe: read response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var decoded detectResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("probe: decode response: %w", err)
	}
	if !decoded.Success || decoded.StreamInfo == nil {
		if decoded.Error != "" {
			return nil, fmt.Errorf("probe: service error: %s", decoded.Error)
		}
		return nil, fmt.Errorf("probe: service reported failure")
	}
	return decoded.StreamInfo, nil
}
