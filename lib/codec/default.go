package codec

import (
	"errors"
	"sync"
)

var (
	ErrNotInitialized     = errors.New("codec registry is not initialized")
	ErrAlreadyInitialized = errors.New("codec registry is already initialized")
)

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init creates the process-wide registry and lets setup register the
// backends. It must run before any concurrent use of Default, typically
// from main. If setup fails the registry is not installed.
func Init(setup func(*Registry) error) (*Registry, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry != nil {
		return nil, ErrAlreadyInitialized
	}
	r := NewRegistry()
	if setup != nil {
		if err := setup(r); err != nil {
			return nil, err
		}
	}
	defaultRegistry = r
	return r, nil
}

// Default returns the process-wide registry, or nil before Init.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRegistry
}

// Shutdown drops every registration and uninstalls the process-wide
// registry, after which Init may be called again. Codecs that were already
// created are unaffected.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry == nil {
		return ErrNotInitialized
	}
	defaultRegistry.clear()
	defaultRegistry = nil
	return nil
}
