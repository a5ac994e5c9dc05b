// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package store persists contexts, DMApps and layouts in BadgerDB.
//
// Key layout:
//
//	context:<contextID>            -> models.Context
//	dmapp:<contextID>:<dmappID>    -> models.DMApp
//	layout:<contextID>             -> models.Layout
//	seq:messages                   -> message id sequence
//
// All values are JSON. The store is safe for concurrent use; Badger
// transactions provide snapshot isolation per call.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/models"
)

const (
	contextKeyPrefix = "context:"
	dmappKeyPrefix   = "dmapp:"
	layoutKeyPrefix  = "layout:"

	messageSeqKey = "seq:messages"

	// messageSeqBandwidth is how many ids one sequence lease covers;
	// restarts may skip up to this many ids, which is fine, ids only
	// need to be monotonic.
	messageSeqBandwidth = 512
)

// ErrNotFound marks a lookup for a key that does not exist.
var ErrNotFound = errors.New("not found")

// Options configures Open.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// GCDiscardRatio tunes value-log garbage collection; see RunGC.
	GCDiscardRatio float64
}

// Store wraps a Badger database with the Mosaicus document operations.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log zerolog.Logger

	gcDiscardRatio float64
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	// Badger logs through its own interface; route it to zerolog.
	log := logging.WithComponent("store")
	bopts = bopts.WithLogger(badgerLogger{log})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}

	seq, err := db.GetSequence([]byte(messageSeqKey), messageSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open message sequence: %w", err)
	}

	ratio := opts.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &Store{db: db, seq: seq, log: log, gcDiscardRatio: ratio}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn().Err(err).Msg("release message sequence")
	}
	return s.db.Close()
}

// NextMessageID returns the next monotonic message id. IDs survive
// restarts (with gaps up to the sequence bandwidth) and never repeat.
func (s *Store) NextMessageID() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	// Sequence starts at 0; message ids start at 1.
	return n + 1, nil
}

// RunGC runs Badger value-log garbage collection until ctx is done.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.gcDiscardRatio)
				if err != nil {
					break
				}
				// A successful GC pass may leave more to reclaim.
			}
		}
	}
}

// --- generic helpers --------------------------------------------------------

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) get(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return err
}

func (s *Store) delete(keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// --- contexts ---------------------------------------------------------------

// SaveContext persists a context document.
func (s *Store) SaveContext(ctx *models.Context) error {
	return s.put(contextKeyPrefix+ctx.ID, ctx)
}

// GetContext loads a context by id.
func (s *Store) GetContext(contextID string) (*models.Context, error) {
	var ctx models.Context
	if err := s.get(contextKeyPrefix+contextID, &ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}

// DeleteContext removes a context and everything scoped under it: its
// DMApps and its persisted layout.
func (s *Store) DeleteContext(contextID string) error {
	apps, err := s.ListDMApps(contextID)
	if err != nil {
		return err
	}
	keys := []string{contextKeyPrefix + contextID, layoutKeyPrefix + contextID}
	for _, app := range apps {
		keys = append(keys, dmappKeyPrefix+contextID+":"+app.ID)
	}
	return s.delete(keys...)
}

// ListContexts returns every persisted context, in key order.
func (s *Store) ListContexts() ([]*models.Context, error) {
	var out []*models.Context
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(contextKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ctx models.Context
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ctx)
			})
			if err != nil {
				return err
			}
			out = append(out, &ctx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	return out, nil
}

// --- dmapps -----------------------------------------------------------------

// SaveDMApp persists a DMApp under its context.
func (s *Store) SaveDMApp(app *models.DMApp) error {
	return s.put(dmappKeyPrefix+app.ContextID+":"+app.ID, app)
}

// GetDMApp loads a DMApp by context and id.
func (s *Store) GetDMApp(contextID, dmappID string) (*models.DMApp, error) {
	var app models.DMApp
	if err := s.get(dmappKeyPrefix+contextID+":"+dmappID, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteDMApp removes a DMApp.
func (s *Store) DeleteDMApp(contextID, dmappID string) error {
	return s.delete(dmappKeyPrefix + contextID + ":" + dmappID)
}

// ListDMApps returns the DMApps loaded into a context.
func (s *Store) ListDMApps(contextID string) ([]*models.DMApp, error) {
	var out []*models.DMApp
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(dmappKeyPrefix + contextID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var app models.DMApp
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &app)
			})
			if err != nil {
				return err
			}
			out = append(out, &app)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dmapps: %w", err)
	}
	return out, nil
}

// --- layouts ----------------------------------------------------------------

// SaveLayout persists the current layout of a context.
func (s *Store) SaveLayout(lay *models.Layout) error {
	return s.put(layoutKeyPrefix+lay.ContextID, lay)
}

// GetLayout loads a context's persisted layout.
func (s *Store) GetLayout(contextID string) (*models.Layout, error) {
	var lay models.Layout
	if err := s.get(layoutKeyPrefix+contextID, &lay); err != nil {
		return nil, err
	}
	return &lay, nil
}

// DeleteLayout removes a context's persisted layout.
func (s *Store) DeleteLayout(contextID string) error {
	return s.delete(layoutKeyPrefix + contextID)
}

// badgerLogger adapts Badger's logger interface to zerolog. Badger is
// chatty at INFO; its info output maps to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any)   { b.log.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...any) { b.log.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...any)    { b.log.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...any)   { b.log.Debug().Msgf(f, v...) }
