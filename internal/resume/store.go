// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resume persists per-item playback positions so a session can pick
// up where the last one stopped.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/dgraph-io/badger/v4"
)

// Position is one saved playback offset.
type Position struct {
	ContentID   string            `json:"contentId"`
	ContentType model.ContentType `json:"contentType"`
	Seconds     float64           `json:"seconds"`
	Duration    float64           `json:"duration,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Finished reports whether the position is close enough to the end that a
// resume would be pointless. Items past 95 percent restart from zero.
func (p Position) Finished() bool {
	return p.Duration > 0 && p.Seconds/p.Duration >= 0.95
}

// Store keeps positions in a local Badger database.
type Store struct {
	db *badger.DB
}

// Open creates or opens the position database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("resume: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store. Used by tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func positionKey(contentType model.ContentType, contentID string) []byte {
	return []byte("pos:" + string(contentType) + ":" + contentID)
}

// Save writes the position. Positions under five seconds are treated as
// accidental opens and clear any saved offset instead.
func (s *Store) Save(p Position) error {
	if p.ContentID == "" || !p.ContentType.Valid() {
		return fmt.Errorf("resume: invalid position key %q/%q", p.ContentID, p.ContentType)
	}
	key := positionKey(p.ContentType, p.ContentID)
	if p.Seconds < 5 || p.Finished() {
		return s.db.Update(func(txn *badger.Txn) error {
			err := txn.Delete(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		})
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// Load returns the saved position, or nil when none exists.
func (s *Store) Load(contentType model.ContentType, contentID string) (*Position, error) {
	var out Position
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(positionKey(contentType, contentID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resume: load %s/%s: %w", contentType, contentID, err)
	}
	return &out, nil
}

// Delete removes the saved position, if any.
func (s *Store) Delete(contentType model.ContentType, contentID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(positionKey(contentType, contentID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// All returns every saved position, newest first order is not guaranteed.
func (s *Store) All() ([]Position, error) {
	var out []Position
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("pos:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var p Position
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
