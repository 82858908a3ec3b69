// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resume

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Position{
		ContentID:   "101",
		ContentType: model.ContentMovie,
		Seconds:     723.5,
		Duration:    5400,
	}))

	p, err := s.Load(model.ContentMovie, "101")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 723.5, p.Seconds)
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestLoadMissReturnsNil(t *testing.T) {
	s := openTestStore(t)

	p, err := s.Load(model.ContentSeries, "nope")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestShortPositionsClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Position{ContentID: "1", ContentType: model.ContentMovie, Seconds: 600, Duration: 5400}))
	// a later save under five seconds wipes the offset
	require.NoError(t, s.Save(Position{ContentID: "1", ContentType: model.ContentMovie, Seconds: 2, Duration: 5400}))

	p, err := s.Load(model.ContentMovie, "1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFinishedPositionsClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Position{ContentID: "1", ContentType: model.ContentMovie, Seconds: 600, Duration: 5400}))
	require.NoError(t, s.Save(Position{ContentID: "1", ContentType: model.ContentMovie, Seconds: 5300, Duration: 5400}))

	p, err := s.Load(model.ContentMovie, "1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Position{ContentID: "9", ContentType: model.ContentSeries, Seconds: 100}))
	require.NoError(t, s.Delete(model.ContentSeries, "9"))
	require.NoError(t, s.Delete(model.ContentSeries, "9")) // idempotent

	p, err := s.Load(model.ContentSeries, "9")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSaveRejectsInvalidKey(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(Position{ContentID: "", ContentType: model.ContentMovie, Seconds: 60}))
	assert.Error(t, s.Save(Position{ContentID: "1", ContentType: "bogus", Seconds: 60}))
}

func TestExportWritesSortedSnapshot(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(Position{ContentID: "b", ContentType: model.ContentMovie, Seconds: 60}))
	require.NoError(t, s.Save(Position{ContentID: "a", ContentType: model.ContentMovie, Seconds: 30}))

	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, s.Export(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []Position
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ContentID)
	assert.Equal(t, "b", got[1].ContentID)
}
