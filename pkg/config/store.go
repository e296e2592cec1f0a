package config

import (
	"log/slog"
	"sync/atomic"
)

// Store publishes the active configuration snapshot. Readers call Snapshot
// on the hot path and never block; Reload swaps the pointer atomically, so
// a running request keeps the snapshot it started with for its whole
// lifetime (read-copy-update, no locks).
type Store struct {
	current atomic.Pointer[Config]
	dir     string
}

// NewStore loads the initial configuration from configDir and publishes it.
// A load or validation failure here is a boot failure.
func NewStore(configDir string) (*Store, error) {
	cfg, err := Load(configDir)
	if err != nil {
		return nil, err
	}
	s := &Store{dir: configDir}
	s.current.Store(cfg)
	return s, nil
}

// NewStoreFromConfig wraps an already-built snapshot. Intended for tests;
// a store built this way has no directory and cannot Reload.
func NewStoreFromConfig(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the active configuration. The returned value is shared
// and must be treated as immutable.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Reload re-reads the configuration directory and swaps the snapshot.
// On any load or validation error the previous snapshot is retained and the
// error returned; running traffic is never exposed to a half-valid config.
func (s *Store) Reload() error {
	cfg, err := Load(s.dir)
	if err != nil {
		slog.Error("Configuration reload rejected, keeping previous snapshot", "error", err)
		return err
	}
	s.current.Store(cfg)
	slog.Info("Configuration reloaded")
	return nil
}
