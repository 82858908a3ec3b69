// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/engine/enginetest"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	fakes []*enginetest.Fake
}

func newTestEnv(t *testing.T, fakes ...*enginetest.Fake) *testEnv {
	t.Helper()
	if len(fakes) == 0 {
		fakes = []*enginetest.Fake{enginetest.NewFake(model.BackendMPV)}
	}
	reg := engine.NewRegistry()
	f := enginetest.Factory(fakes...)
	reg.Register(model.BackendMPV, f)
	reg.Register(model.BackendVLC, f)
	reg.Register(model.BackendHLS, f)

	mgr := session.NewManager(session.Config{}, session.Deps{Registry: reg})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})

	s := NewServer(mgr, nil, nil, Options{Version: "test"})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, fakes: fakes}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, e *testEnv) sessionView {
	resp := e.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"url":         "http://provider.example/movie/u/p/1.mkv",
		"contentType": "movie",
		"contentId":   "1",
		"title":       "One",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionView](t, resp)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndGetSession(t *testing.T) {
	e := newTestEnv(t)
	v := createSession(t, e)

	assert.NotEmpty(t, v.ID)
	assert.True(t, v.State.IsLoading)

	resp := e.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionView](t, resp)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, "One", got.Source.Title)
}

func TestCreateSessionValidation(t *testing.T) {
	e := newTestEnv(t)

	// no URL and no stream builder configured
	resp := e.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"contentType": "movie",
		"contentId":   "1",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/sessions", map[string]any{
		"url":         "http://x/1.mp4",
		"contentType": "bogus",
		"contentId":   "1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSessionIs404(t *testing.T) {
	e := newTestEnv(t)
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodDelete, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/play"},
		{http.MethodPost, "/api/sessions/nope/cast/start"},
	} {
		resp := e.do(t, probe.method, probe.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", probe.method, probe.path)
	}
}

func TestTransportEndpoints(t *testing.T) {
	fake := enginetest.NewFake(model.BackendMPV)
	e := newTestEnv(t, fake)
	v := createSession(t, e)

	dur := 100.0
	fake.Emit(engine.Event{Kind: engine.EvLoaded, Duration: &dur})

	resp := e.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/play", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionView](t, resp)
	assert.True(t, got.State.IsPlaying)

	resp = e.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[sessionView](t, resp)
	assert.False(t, got.State.IsPlaying)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/seek", v.ID), map[string]any{"position": 42.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []float64{42.5}, fake.Seeks)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/seek", v.ID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/volume", v.ID), map[string]any{"volume": 2.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[sessionView](t, resp)
	assert.Equal(t, 1.0, got.State.Volume) // clamped

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/volume", v.ID), map[string]any{"toggleMute": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[sessionView](t, resp)
	assert.True(t, got.State.IsMuted)
}

func TestTrackSelectionEndpoints(t *testing.T) {
	fake := enginetest.NewFake(model.BackendMPV)
	e := newTestEnv(t, fake)
	v := createSession(t, e)

	dur := 100.0
	fake.Emit(engine.Event{
		Kind:      engine.EvLoaded,
		Duration:  &dur,
		Audio:     []model.AudioTrack{{ID: "a1", Language: "en"}},
		Subtitles: []model.SubtitleTrack{{ID: "s1", Language: "de"}},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := e.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil)
		if got := decode[sessionView](t, resp); !got.State.IsLoading {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := e.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/tracks/audio", map[string]any{"id": "a1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionView](t, resp)
	assert.Equal(t, "a1", got.State.SelectedAudio)

	// unknown track id is a silent no-op
	resp = e.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/tracks/subtitle", map[string]any{"id": "missing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[sessionView](t, resp)
	assert.Empty(t, got.State.SelectedSubtitle)
}

func TestDeleteSessionTearsDown(t *testing.T) {
	fake := enginetest.NewFake(model.BackendMPV)
	e := newTestEnv(t, fake)
	v := createSession(t, e)

	resp := e.do(t, http.MethodDelete, "/api/sessions/"+v.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, fake.Closed())

	resp = e.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCastStartWithoutReceiver(t *testing.T) {
	e := newTestEnv(t)
	v := createSession(t, e)

	resp := e.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/cast/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProbeWithoutProber(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/api/probe?url=http://x/1.mkv", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
