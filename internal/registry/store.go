// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/modvote/internal/logging"
)

const (
	prefixProvider = "provider:"
	keySettings    = "settings"
)

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("registry store is closed")

// StoreConfig configures the BadgerDB store.
type StoreConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// Store persists providers and settings as JSON documents in BadgerDB.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenStore opens (or creates) the database.
func OpenStore(cfg StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Registry store opened")
	return &Store{db: db}, nil
}

// LoadProviders returns every stored provider.
func (s *Store) LoadProviders() ([]*PersistedProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var providers []*PersistedProvider
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixProvider)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var p PersistedProvider
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable provider record")
				continue
			}
			providers = append(providers, &p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

// SaveProvider upserts a provider.
func (s *Store) SaveProvider(p *PersistedProvider) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal provider %s: %w", p.ID, err)
	}
	return s.put([]byte(prefixProvider+p.ID), data)
}

// LoadSettings returns the stored settings. found is false on a fresh
// database.
func (s *Store) LoadSettings() (settings GlobalSettings, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return settings, false, ErrStoreClosed
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySettings))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &settings)
		})
	})
	if err != nil {
		return settings, false, fmt.Errorf("load settings: %w", err)
	}
	return settings, found, nil
}

// SaveSettings replaces the settings record.
func (s *Store) SaveSettings(settings GlobalSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.put([]byte(keySettings), data)
}

func (s *Store) put(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// RunGC rewrites value log files until badger reports nothing left to
// reclaim. In-memory stores have no value log and return nil.
func (s *Store) RunGC(discardRatio float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	for {
		err := s.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// Close closes the database. Further calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
