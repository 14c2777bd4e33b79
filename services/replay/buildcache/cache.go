// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package buildcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// schemaVersion is bumped whenever Entry's encoding changes.
const schemaVersion uint16 = 1

const keyPrefix = "build/"

// Entry is one remembered build.
type Entry struct {
	Schema       uint16
	Success      bool
	ArtifactPath string
	Diagnostics  []datatypes.Diagnostic
	CreatedAt    time.Time
}

// Cache maps a build key to the outcome of that build.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	db     *badger.DB
	gc     *gcRunner
	ttl    time.Duration
	logger *slog.Logger
}

// Open opens the cache described by cfg.
//
// Description:
//
//	Opens (or creates) the BadgerDB at cfg.Path, or an in-memory one, and
//	starts value log GC when configured for a persistent database.
//
// Inputs:
//
//	cfg - Cache configuration.
//
// Outputs:
//
//	*Cache - The open cache. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Cache, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{db: db, ttl: cfg.TTL, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
	}
	return c, nil
}

// Get looks up key.
//
// Outputs:
//
//	Entry - The remembered build.
//	bool - False on a miss, including an entry from another schema version
//	       and a successful entry whose artifact no longer exists.
//	error - Database or decode failure.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		recordLookup(ctx, false)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read build cache: %w", err)
	}
	if entry.Schema != schemaVersion {
		recordLookup(ctx, false)
		return Entry{}, false, nil
	}
	if entry.Success {
		if _, err := os.Stat(entry.ArtifactPath); err != nil {
			c.logger.Debug("Cached artifact missing",
				slog.String("key", key),
				slog.String("artifact", entry.ArtifactPath),
			)
			recordLookup(ctx, false)
			return Entry{}, false, nil
		}
	}
	recordLookup(ctx, true)
	return entry, true, nil
}

// Put stores entry under key.
func (c *Cache) Put(ctx context.Context, key string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.Schema = schemaVersion
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	val, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode build cache entry: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write build cache: %w", err)
	}
	return nil
}

// Delete forgets key.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Close stops GC and closes the database.
func (c *Cache) Close() error {
	if c.gc != nil {
		c.gc.stop()
	}
	return c.db.Close()
}
