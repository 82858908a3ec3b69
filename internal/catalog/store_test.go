// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLookupMissIsNotAnError(t *testing.T) {
	s := openTestStore(t)

	h, err := s.Lookup(context.Background(), "42", model.ContentMovie)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSaveAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := Hints{
		ContentID:       "42",
		ContentType:     model.ContentMovie,
		ContainerExt:    "mkv",
		VideoCodec:      "h264",
		AudioCodec:      "ac3",
		HasSubtitles:    true,
		AudioTrackCount: 2,
	}
	require.NoError(t, s.Save(ctx, in))

	got, err := s.Lookup(ctx, "42", model.ContentMovie)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mkv", got.ContainerExt)
	assert.Equal(t, "h264", got.VideoCodec)
	assert.True(t, got.HasSubtitles)
	assert.Equal(t, 2, got.AudioTrackCount)
	assert.False(t, got.ProbedAt.IsZero())

	// same id under a different content type is a distinct row
	miss, err := s.Lookup(ctx, "42", model.ContentSeries)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSaveUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Hints{ContentID: "7", ContentType: model.ContentSeries, ContainerExt: "mp4"}))
	require.NoError(t, s.Save(ctx, Hints{ContentID: "7", ContentType: model.ContentSeries, ContainerExt: "mkv", HasSubtitles: true}))

	got, err := s.Lookup(ctx, "7", model.ContentSeries)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mkv", got.ContainerExt)
	assert.True(t, got.HasSubtitles)
}

func TestSaveRejectsInvalidKey(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(context.Background(), Hints{ContentID: "", ContentType: model.ContentMovie}))
	assert.Error(t, s.Save(context.Background(), Hints{ContentID: "1", ContentType: "bogus"}))
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := Hints{ContentID: "old", ContentType: model.ContentMovie, ContainerExt: "avi", ProbedAt: time.Now().Add(-48 * time.Hour)}
	fresh := Hints{ContentID: "new", ContentType: model.ContentMovie, ContainerExt: "mkv"}
	require.NoError(t, s.Save(ctx, old))
	require.NoError(t, s.Save(ctx, fresh))

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	h, err := s.Lookup(ctx, "new", model.ContentMovie)
	require.NoError(t, err)
	assert.NotNil(t, h)
}
