// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resume

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/renameio/v2"
)

// Export writes every saved position to path as a JSON snapshot. The write is
// atomic and durable: fsync before rename prevents a torn file on power loss.
func (s *Store) Export(path string) error {
	positions, err := s.All()
	if err != nil {
		return fmt.Errorf("resume: export: %w", err)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].ContentType != positions[j].ContentType {
			return positions[i].ContentType < positions[j].ContentType
		}
		return positions[i].ContentID < positions[j].ContentID
	})

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("resume: create pending export: %w", err)
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(positions); err != nil {
		return fmt.Errorf("resume: write export: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("resume: replace export: %w", err)
	}
	return nil
}
