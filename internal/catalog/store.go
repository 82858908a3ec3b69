// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package catalog persists per-item container and codec hints so known items
// skip the remote prober on replay.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/playbackd/internal/persistence/sqlite"
	"github.com/ManuGH/playbackd/internal/player/model"
)

const schemaVersion = 1

// Hints are the cached analysis facts for one content item.
type Hints struct {
	ContentID       string
	ContentType     model.ContentType
	ContainerExt    string
	VideoCodec      string
	AudioCodec      string
	HasSubtitles    bool
	AudioTrackCount int
	ProbedAt        time.Time
}

// Store is the SQLite-backed hint catalog.
type Store struct {
	db *sql.DB
}

// Open initializes the catalog at dbPath, migrating the schema if needed.
func Open(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS item_hints (
		content_id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		container_ext TEXT NOT NULL,
		video_codec TEXT,
		audio_codec TEXT,
		has_subtitles INTEGER NOT NULL DEFAULT 0,
		audio_track_count INTEGER NOT NULL DEFAULT 0,
		probed_at_ms INTEGER NOT NULL,
		PRIMARY KEY (content_id, content_type)
	);

	CREATE INDEX IF NOT EXISTS idx_item_hints_probed ON item_hints(probed_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Lookup returns the hints for one item, or nil when the item was never
// probed. A miss is not an error.
func (s *Store) Lookup(ctx context.Context, contentID string, contentType model.ContentType) (*Hints, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT container_ext, video_codec, audio_codec, has_subtitles, audio_track_count, probed_at_ms
		FROM item_hints WHERE content_id = ? AND content_type = ?`,
		contentID, string(contentType))

	var h Hints
	var videoCodec, audioCodec sql.NullString
	var hasSubs int
	var probedAtMS int64
	err := row.Scan(&h.ContainerExt, &videoCodec, &audioCodec, &hasSubs, &h.AudioTrackCount, &probedAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: lookup %s/%s: %w", contentType, contentID, err)
	}

	h.ContentID = contentID
	h.ContentType = contentType
	h.VideoCodec = videoCodec.String
	h.AudioCodec = audioCodec.String
	h.HasSubtitles = hasSubs != 0
	h.ProbedAt = time.UnixMilli(probedAtMS)
	return &h, nil
}

// Save upserts the hints for one item.
func (s *Store) Save(ctx context.Context, h Hints) error {
	if h.ContentID == "" || !h.ContentType.Valid() {
		return fmt.Errorf("catalog: invalid hint key %q/%q", h.ContentID, h.ContentType)
	}
	probedAt := h.ProbedAt
	if probedAt.IsZero() {
		probedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_hints (content_id, content_type, container_ext, video_codec, audio_codec, has_subtitles, audio_track_count, probed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id, content_type) DO UPDATE SET
			container_ext = excluded.container_ext,
			video_codec = excluded.video_codec,
			audio_codec = excluded.audio_codec,
			has_subtitles = excluded.has_subtitles,
			audio_track_count = excluded.audio_track_count,
			probed_at_ms = excluded.probed_at_ms`,
		h.ContentID, string(h.ContentType), h.ContainerExt, h.VideoCodec, h.AudioCodec,
		boolToInt(h.HasSubtitles), h.AudioTrackCount, probedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("catalog: save %s/%s: %w", h.ContentType, h.ContentID, err)
	}
	return nil
}

// Prune removes hints older than the cutoff and reports how many went away.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM item_hints WHERE probed_at_ms < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("catalog: prune: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
