// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"os/exec"
	"sync"

	"github.com/ManuGH/playbackd/internal/player/model"
)

// Registry records which backends are usable on this host. It replaces
// process-wide singletons so tests and teardown stay deterministic: the
// daemon owns one instance and passes it where selection happens.
type Registry struct {
	mu        sync.RWMutex
	available map[model.Backend]bool
	factories map[model.Backend]Factory
}

// NewRegistry returns an empty registry. BackendHLS is always available since
// it runs in-process.
func NewRegistry() *Registry {
	return &Registry{
		available: map[model.Backend]bool{model.BackendHLS: true},
		factories: make(map[model.Backend]Factory),
	}
}

// Register marks a backend available and records its factory.
func (r *Registry) Register(b model.Backend, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available[b] = true
	r.factories[b] = f
}

// Available reports whether a backend can be constructed on this host.
func (r *Registry) Available(b model.Backend) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[b]
}

// New constructs a fresh engine for the given backend.
func (r *Registry) New(b model.Backend) (Engine, error) {
	r.mu.RLock()
	f, ok := r.factories[b]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnavailableError{Backend: b}
	}
	return f(b)
}

// UnavailableError reports a backend with no registered factory.
type UnavailableError struct {
	Backend model.Backend
}

func (e *UnavailableError) Error() string {
	return "engine: backend " + string(e.Backend) + " not available"
}

// BinaryAvailable probes PATH for a player binary. Used at startup to decide
// which native backends to register.
func BinaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
