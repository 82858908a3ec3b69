// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"github.com/ManuGH/playbackd/internal/player/model"
)

// Capabilities answers backend-availability questions during selection. The
// Registry satisfies it; tests use a plain map via CapabilitySet.
type Capabilities interface {
	Available(model.Backend) bool
}

// CapabilitySet is a static Capabilities implementation.
type CapabilitySet map[model.Backend]bool

// Available implements Capabilities.
func (c CapabilitySet) Available(b model.Backend) bool { return c[b] }

// Select picks the backend for a source. It is a pure function of the source
// URL, the platform and the registered capabilities:
//
//   - an explicit non-auto preference wins unconditionally;
//   - web clients always get the manifest engine;
//   - on native/TV, matroska content routes to the dedicated engine when it
//     is available, otherwise the general-purpose engine;
//   - everything else gets the general-purpose engine.
func Select(src model.Source, platform model.Platform, pref model.Backend, caps Capabilities) model.Backend {
	if pref != "" && pref != model.BackendAuto {
		return pref
	}
	if platform == model.PlatformWeb {
		return model.BackendHLS
	}
	if src.Extension() == "mkv" && caps != nil && caps.Available(model.BackendVLC) {
		return model.BackendVLC
	}
	return model.BackendMPV
}
