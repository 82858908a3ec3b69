// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/playbackd/internal/catalog"
	"github.com/ManuGH/playbackd/internal/player/engine"
	"github.com/ManuGH/playbackd/internal/player/engine/enginetest"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/probe"
	"github.com/ManuGH/playbackd/internal/resume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testRegistry(fakes ...*enginetest.Fake) *engine.Registry {
	r := engine.NewRegistry()
	f := enginetest.Factory(fakes...)
	r.Register(model.BackendMPV, f)
	r.Register(model.BackendVLC, f)
	r.Register(model.BackendHLS, f)
	return r
}

func testSource() model.Source {
	return model.Source{
		URL:         "http://provider.example/movie/u/p/1.mkv",
		ContentType: model.ContentMovie,
		ContentID:   "1",
		Title:       "One",
	}
}

func newManager(t *testing.T, cfg Config, deps Deps) *Manager {
	t.Helper()
	m := NewManager(cfg, deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func emitLoaded(fake *enginetest.Fake, duration float64) {
	fake.Emit(engine.Event{Kind: engine.EvLoaded, Duration: &duration})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestCreateAttachesSelectedBackend(t *testing.T) {
	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(fake)})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{Platform: model.PlatformNative})
	require.NoError(t, err)

	// a native .mkv routes to vlc when registered
	assert.Equal(t, model.BackendVLC, s.Backend)
	assert.True(t, s.Store.Snapshot().IsLoading)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 1)
}

func TestCreateRejectsInvalidSource(t *testing.T) {
	m := newManager(t, Config{}, Deps{Registry: testRegistry(enginetest.NewFake(model.BackendMPV))})

	_, err := m.Create(context.Background(), model.Source{}, CreateOptions{})
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestStopAwaitsTeardown(t *testing.T) {
	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(fake)})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)
	emitLoaded(fake, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx, s.ID))

	assert.True(t, fake.Closed())
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Stop(ctx, s.ID), ErrNotFound)
}

func TestRetryRebuildsEngineFromScratch(t *testing.T) {
	first := enginetest.NewFake(model.BackendVLC)
	second := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(first, second)})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)
	emitLoaded(first, 100)
	waitFor(t, func() bool { return !s.Store.Snapshot().IsLoading })

	s.Store.SetProgress(40, nil)
	first.Emit(engine.Event{Kind: engine.EvError, Err: errors.New("decoder died")})
	waitFor(t, func() bool { return s.Store.Snapshot().HasError != "" })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Retry(ctx, s.ID))

	// the failed engine is gone and a fresh one took its place
	assert.True(t, first.Closed())
	require.NotNil(t, second.LoadedSource)
	assert.Equal(t, 40.0, second.LoadedSource.StartTime)

	snap := s.Store.Snapshot()
	assert.Empty(t, snap.HasError)
	assert.True(t, snap.IsLoading)
}

func TestResumePopulatesStartTime(t *testing.T) {
	rs, err := resume.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	require.NoError(t, rs.Save(resume.Position{
		ContentID:   "1",
		ContentType: model.ContentMovie,
		Seconds:     321,
		Duration:    5400,
	}))

	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(fake), Resume: rs})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 321.0, s.Source.StartTime)
}

func TestTeardownPersistsFinalPosition(t *testing.T) {
	rs, err := resume.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(fake), Resume: rs})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)
	emitLoaded(fake, 5400)
	waitFor(t, func() bool { return !s.Store.Snapshot().IsLoading })

	dur := 5400.0
	fake.Emit(engine.Event{Kind: engine.EvProgress, Position: 777, Duration: &dur})
	waitFor(t, func() bool { return s.Store.Snapshot().Current == 777 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx, s.ID))

	pos, err := rs.Load(model.ContentMovie, "1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 777.0, pos.Seconds)
}

func TestEndOfPlaybackClearsResume(t *testing.T) {
	rs, err := resume.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	require.NoError(t, rs.Save(resume.Position{
		ContentID: "1", ContentType: model.ContentMovie, Seconds: 300, Duration: 5400,
	}))

	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{}, Deps{Registry: testRegistry(fake), Resume: rs})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)
	emitLoaded(fake, 5400)
	fake.Emit(engine.Event{Kind: engine.EvEnded})
	waitFor(t, func() bool {
		pos, lerr := rs.Load(model.ContentMovie, "1")
		return lerr == nil && pos == nil
	})
	_ = s
}

func TestIdleSweeperStopsStaleSessions(t *testing.T) {
	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{
		IdleTTL:       30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, Deps{Registry: testRegistry(fake)})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)

	waitFor(t, func() bool {
		_, gerr := m.Get(s.ID)
		return errors.Is(gerr, ErrNotFound)
	})
	assert.True(t, fake.Closed())
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	fake := enginetest.NewFake(model.BackendVLC)
	m := newManager(t, Config{
		IdleTTL:       150 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	}, Deps{Registry: testRegistry(fake)})

	s, err := m.Create(context.Background(), testSource(), CreateOptions{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		time.Sleep(50 * time.Millisecond)
		s.Heartbeat()
	}
	_, err = m.Get(s.ID)
	assert.NoError(t, err)
}

// hintDeps wires a manager against a fake probe service and a shared catalog.
// Every manager gets a fresh prober so its in-memory probe cache cannot mask
// what the catalog answers.
func hintDeps(t *testing.T, probeURL string, cat *catalog.Store) Deps {
	t.Helper()
	prober := probe.NewProber(probe.NewClient(probeURL, nil), probe.ProberOptions{})
	t.Cleanup(prober.Close)
	return Deps{
		Registry: testRegistry(enginetest.NewFake(model.BackendMPV)),
		Prober:   prober,
		Catalog:  cat,
	}
}

func TestCatalogHintShortCircuitsKnownSubtitlelessItems(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			StreamURL string `json:"streamUrl"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		info := &probe.Result{ContainerFormat: "matroska"}
		if strings.Contains(req.StreamURL, "subs") {
			info.HasEmbeddedSubtitles = true
			info.SubtitleTracks = []probe.TrackInfo{
				{Index: 0, Codec: "subrip", Language: "en"},
				{Index: 1, Codec: "subrip", Language: "de"},
			}
			info.AudioTracks = []probe.TrackInfo{{Index: 0, Codec: "aac", Language: "en"}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "streamInfo": info})
	}))
	defer srv.Close()

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, cat.Close()) }()

	ctx := context.Background()
	bare := testSource()

	m1 := newManager(t, Config{}, hintDeps(t, srv.URL, cat))
	langs, err := m1.hintedLookup(bare)(ctx, bare.URL)
	require.NoError(t, err)
	assert.Empty(t, langs)
	assert.Equal(t, int32(1), calls.Load())

	// Replay with a cold prober: the saved hint alone must answer.
	m2 := newManager(t, Config{}, hintDeps(t, srv.URL, cat))
	langs, err = m2.hintedLookup(bare)(ctx, bare.URL)
	require.NoError(t, err)
	assert.Empty(t, langs)
	assert.Equal(t, int32(1), calls.Load())

	// Items known to carry subtitles keep probing for the track list.
	withSubs := testSource()
	withSubs.ContentID = "2"
	withSubs.URL = "http://provider.example/movie/u/p/2-subs.mkv"

	langs, err = m1.hintedLookup(withSubs)(ctx, withSubs.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "de"}, langs)
	assert.Equal(t, int32(2), calls.Load())

	langs, err = m2.hintedLookup(withSubs)(ctx, withSubs.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "de"}, langs)
	assert.Equal(t, int32(3), calls.Load())
}
