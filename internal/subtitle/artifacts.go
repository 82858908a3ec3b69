// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/playbackd/internal/fsutil"
	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/rs/zerolog"
)

// Artifacts tracks the temporary caption files materialized for one playback
// session so teardown can revoke every one of them. Revocation is
// best-effort: failures are logged and never propagate.
type Artifacts struct {
	mu    sync.Mutex
	dir   string
	paths []string
	log   zerolog.Logger
}

// NewArtifacts returns an empty artifact list rooted in dir (os.TempDir()
// when empty). The directory is created if missing.
func NewArtifacts(dir string) *Artifacts {
	lg := xglog.WithComponent("subtitle.artifacts")
	if dir == "" {
		dir = os.TempDir()
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		lg.Warn().Err(err).Str(xglog.FieldPath, dir).Msg("artifact dir creation failed")
	}
	return &Artifacts{dir: dir, log: lg}
}

// Materialize writes content to a tracked temporary file and returns its
// path. name derives from request input, so it is confined to the artifact
// root before any filesystem work.
func (a *Artifacts) Materialize(name, content string) (string, error) {
	if _, err := fsutil.ConfineRelPath(a.dir, name); err != nil {
		return "", fmt.Errorf("subtitle: unsafe artifact name %q: %w", name, err)
	}
	f, err := os.CreateTemp(a.dir, "playbackd-sub-*-"+filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("subtitle: materialize %s: %w", name, err)
	}
	path := f.Name()
	_, werr := f.WriteString(content)
	cerr := f.Close()

	a.mu.Lock()
	a.paths = append(a.paths, path)
	a.mu.Unlock()

	if werr != nil {
		return "", fmt.Errorf("subtitle: write %s: %w", path, werr)
	}
	if cerr != nil {
		return "", fmt.Errorf("subtitle: close %s: %w", path, cerr)
	}
	return path, nil
}

// RevokeAll removes every tracked artifact and empties the list.
func (a *Artifacts) RevokeAll() {
	a.mu.Lock()
	paths := a.paths
	a.paths = nil
	a.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			a.log.Warn().Err(err).Str(xglog.FieldPath, p).Msg("artifact removal failed")
		}
	}
}

// Len reports the number of tracked artifacts.
func (a *Artifacts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.paths)
}
