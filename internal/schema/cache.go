// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema caches cluster schema snapshots and exposes them as a tree.
package schema

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/store"
)

// Fetcher retrieves a fresh schema snapshot from the remote service.
type Fetcher interface {
	FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error)

func (f FetcherFunc) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	return f(ctx, info)
}

// Cache keeps one snapshot per cluster. Snapshots are also persisted to the
// store so a restart does not refetch every cluster.
type Cache struct {
	fetcher Fetcher
	store   store.Store
	log     *zap.Logger

	mu        sync.Mutex
	snapshots map[connection.Key]*kusto.EngineSchema
}

// NewCache creates a Cache. s may be nil to keep snapshots in memory only.
func NewCache(f Fetcher, s store.Store, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		fetcher:   f,
		store:     s,
		log:       log.Named("schema"),
		snapshots: make(map[connection.Key]*kusto.EngineSchema),
	}
}

// snapshotKey identifies the cluster a connection belongs to; every database
// on the cluster shares one snapshot.
func snapshotKey(info connection.Info) connection.Key {
	return connection.Encode(info.WithDatabase(""))
}

// Get returns the schema for info's cluster, fetching it when ignoreCache is
// set or nothing is cached. Fetch failures are SchemaFetchError.
func (c *Cache) Get(ctx context.Context, info connection.Info, ignoreCache bool) (*kusto.EngineSchema, error) {
	key := snapshotKey(info)
	if !ignoreCache {
		if s, ok := c.cached(ctx, key); ok {
			return s, nil
		}
	}

	s, err := c.fetcher.FetchSchema(ctx, info)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.SchemaFetchError, "fetch schema for "+info.DisplayName, err)
	}

	c.mu.Lock()
	c.snapshots[key] = s
	c.mu.Unlock()

	if c.store != nil {
		if err := store.SetJSON(ctx, c.store, store.Global, store.KeyPrefixForClusterSchema+string(key), s); err != nil {
			c.log.Warn("persist schema", zap.String("cluster", info.ID), zap.Error(err))
		}
	}
	return s, nil
}

func (c *Cache) cached(ctx context.Context, key connection.Key) (*kusto.EngineSchema, bool) {
	c.mu.Lock()
	s, ok := c.snapshots[key]
	c.mu.Unlock()
	if ok || c.store == nil {
		return s, ok
	}

	var persisted kusto.EngineSchema
	found, err := store.GetJSON(ctx, c.store, store.Global, store.KeyPrefixForClusterSchema+string(key), &persisted)
	if err != nil {
		c.log.Debug("ignoring persisted schema", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	c.mu.Lock()
	c.snapshots[key] = &persisted
	c.mu.Unlock()
	return &persisted, true
}

// Invalidate drops the snapshot for info's cluster from memory and the store.
func (c *Cache) Invalidate(ctx context.Context, info connection.Info) {
	key := snapshotKey(info)
	c.mu.Lock()
	delete(c.snapshots, key)
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(ctx, store.Global, store.KeyPrefixForClusterSchema+string(key)); err != nil {
			c.log.Warn("drop persisted schema", zap.String("cluster", info.ID), zap.Error(err))
		}
	}
}
