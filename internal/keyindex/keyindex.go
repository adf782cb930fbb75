// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package keyindex

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/logging"
	"github.com/tomtom215/animedex/internal/models"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("key index closed")

// Key prefixes. Mappings live under prefixKey; prefixCanonical is a
// secondary index from canonical id to source key with empty values.
const (
	prefixKey       = "key:"
	prefixCanonical = "canon:"
)

// Store is a BadgerDB-backed index from natural key (source#id) to the
// canonical entity it resolved to and the record's last content hash.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the index described by cfg.
func Open(cfg config.KeyIndexConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("key index path is required unless in_memory is set")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Key index opened")
	return &Store{db: db}, nil
}

func mappingKey(sourceKey string) []byte {
	return []byte(prefixKey + sourceKey)
}

func canonicalPrefix(id int64) []byte {
	return []byte(prefixCanonical + strconv.FormatInt(id, 10) + ":")
}

func canonicalKey(id int64, sourceKey string) []byte {
	return append(canonicalPrefix(id), sourceKey...)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Ping reports whether the index is open.
func (s *Store) Ping() error {
	return s.checkOpen()
}

// Lookup returns the mapping for a natural key.
func (s *Store) Lookup(sourceKey string) (models.KeyMapping, bool, error) {
	var m models.KeyMapping
	if err := s.checkOpen(); err != nil {
		return m, false, err
	}

	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mappingKey(sourceKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return models.KeyMapping{}, false, fmt.Errorf("lookup %s: %w", sourceKey, err)
	}
	return m, found, nil
}

// Put stores mappings in one write batch. A mapping that moves a key to a
// different canonical id replaces the old secondary index entry.
func (s *Store) Put(mappings []models.KeyMapping) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range mappings {
			m := &mappings[i]
			sk := m.SourceKey()

			item, err := txn.Get(mappingKey(sk))
			switch {
			case err == nil:
				var prev models.KeyMapping
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err != nil {
					return err
				}
				if prev.CanonicalID != m.CanonicalID {
					if err := txn.Delete(canonicalKey(prev.CanonicalID, sk)); err != nil {
						return err
					}
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal mapping %s: %w", sk, err)
			}
			if err := txn.SetEntry(badger.NewEntry(mappingKey(sk), data)); err != nil {
				return err
			}
			if err := txn.Set(canonicalKey(m.CanonicalID, sk), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %d mappings: %w", len(mappings), err)
	}
	return nil
}

// SourceKeys returns the natural keys mapped to a canonical entity.
func (s *Store) SourceKeys(canonicalID int64) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	prefix := canonicalPrefix(canonicalID)
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan canonical %d: %w", canonicalID, err)
	}
	return out, nil
}

// Each calls fn for every mapping in key order until fn returns an error.
func (s *Store) Each(fn func(models.KeyMapping) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	prefix := []byte(prefixKey)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m models.KeyMapping
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(m); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored mappings.
func (s *Store) Count() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	n := 0
	prefix := []byte(prefixKey)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Rebuild replaces the whole index with mappings. It is used to recover the
// index from the warehouse after the two drift apart.
func (s *Store) Rebuild(mappings []models.KeyMapping) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop key index: %w", err)
	}
	if err := s.Put(mappings); err != nil {
		return err
	}
	logging.Info().Int("mappings", len(mappings)).Msg("Key index rebuilt")
	return nil
}

// RunGC reclaims value log space until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.db.Opts().InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}
