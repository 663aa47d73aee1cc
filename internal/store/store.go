// Package store keeps the engine state in an embedded BadgerDB.
//
// Every state transition runs inside a single read-write transaction (Store.Update), so a
// transition either commits all of its writes or none of them.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/logger"
)

// Config holds configuration for the BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory disables disk persistence. Used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCInterval is how often value log garbage collection runs. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the minimum discardable ratio before a value log file is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store wraps the BadgerDB handle.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger zerolog.Logger
}

// badgerLogger adapts zerolog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// Open opens the database described by cfg, creating its directory if needed.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	storeLogger := logger.GetForComponent("state_store")
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: storeLogger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	storeLogger.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("State store opened")
	return &Store{db: db, cfg: cfg, logger: storeLogger}, nil
}

// OpenInMemory opens an in-memory database.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Info().Msg("Closing state store...")
	return s.db.Close()
}

// Update runs fn inside a read-write transaction. Any error discards every write fn made.
func (s *Store) Update(fn func(txn *Txn) error) error {
	return s.db.Update(func(t *badger.Txn) error {
		return fn(&Txn{txn: t})
	})
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(txn *Txn) error) error {
	return s.db.View(func(t *badger.Txn) error {
		return fn(&Txn{txn: t})
	})
}

// RunGC runs value log garbage collection every GCInterval until ctx is done.
func (s *Store) RunGC(ctx context.Context) {
	if s.cfg.InMemory || s.cfg.GCInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Warn().Err(err).Msg("Value log GC failed")
					}
					break
				}
			}
		}
	}
}
