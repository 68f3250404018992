// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kqlnb/cli/internal/store"
)

// Recent is the workspace-scoped list of recently used connections,
// stored as canonical keys, deduplicated, in first-use order.
type Recent struct {
	mu    sync.Mutex
	store store.Store
	log   *zap.Logger
}

// NewRecent creates a Recent list persisted in s.
func NewRecent(s store.Store, log *zap.Logger) *Recent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recent{store: s, log: log}
}

// List returns the recently used connections. Undecodable entries are
// logged and skipped.
func (r *Recent) List(ctx context.Context) ([]Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(keys))
	for _, k := range keys {
		info, err := Decode(k)
		if err != nil {
			r.log.Warn("skipping recent connection", zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Add records info as used.
func (r *Recent) Add(ctx context.Context, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.keys(ctx)
	if err != nil {
		return err
	}
	keys = dedupe(append(keys, Encode(info)))
	if err := store.SetJSON(ctx, r.store, store.Workspace, store.KeyRecentConnections, keys); err != nil {
		return fmt.Errorf("save recent connections: %w", err)
	}
	return nil
}

// keys returns the stored keys with duplicates removed, keeping the first
// occurrence of each.
func (r *Recent) keys(ctx context.Context) ([]Key, error) {
	var stored []Key
	if _, err := store.GetJSON(ctx, r.store, store.Workspace, store.KeyRecentConnections, &stored); err != nil {
		return nil, fmt.Errorf("load recent connections: %w", err)
	}
	return dedupe(stored), nil
}

func dedupe(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
