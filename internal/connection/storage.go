// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kqlnb/cli/internal/events"
	"kqlnb/cli/internal/store"
)

// ChangeKind says whether a connection joined or left the global set.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
)

// Change is published on Storage.Changes.
type Change struct {
	Connection Info
	Change     ChangeKind
}

// Storage is the global set of saved connections.
type Storage struct {
	mu    sync.Mutex
	store store.Store
	log   *zap.Logger

	// Changes fires after a connection is added or removed.
	Changes *events.Topic[Change]
}

// NewStorage creates a Storage persisted in s.
func NewStorage(s store.Store, log *zap.Logger) *Storage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{store: s, log: log, Changes: events.NewTopic[Change]()}
}

// List returns the saved connections in insertion order.
func (s *Storage) List(ctx context.Context) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Storage) load(ctx context.Context) ([]Info, error) {
	var infos []Info
	if _, err := store.GetJSON(ctx, s.store, store.Global, store.KeyConnections, &infos); err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	return infos, nil
}

// Find returns the saved connection with the given id.
func (s *Storage) Find(ctx context.Context, id string) (Info, bool, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return Info{}, false, err
	}
	for _, info := range infos {
		if info.ID == id {
			return info, true, nil
		}
	}
	return Info{}, false, nil
}

// Add saves info. A connection with the same id is replaced; adding an
// identical connection again is a no-op and fires nothing.
func (s *Storage) Add(ctx context.Context, info Info) error {
	s.mu.Lock()
	infos, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	replaced := false
	for i, existing := range infos {
		if existing.ID != info.ID {
			continue
		}
		if Encode(existing) == Encode(info) {
			s.mu.Unlock()
			return nil
		}
		infos[i] = info
		replaced = true
		break
	}
	if !replaced {
		infos = append(infos, info)
	}
	err = store.SetJSON(ctx, s.store, store.Global, store.KeyConnections, infos)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save connections: %w", err)
	}

	s.log.Debug("connection added", zap.String("id", info.ID), zap.String("kind", string(info.Kind)))
	s.Changes.Publish(Change{Connection: info, Change: Added})
	return nil
}

// Remove deletes the connection with the given id.
// It reports false when no such connection was saved.
func (s *Storage) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	infos, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	var removed *Info
	kept := infos[:0]
	for _, info := range infos {
		if info.ID == id && removed == nil {
			info := info
			removed = &info
			continue
		}
		kept = append(kept, info)
	}
	if removed == nil {
		s.mu.Unlock()
		return false, nil
	}
	err = store.SetJSON(ctx, s.store, store.Global, store.KeyConnections, kept)
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("save connections: %w", err)
	}

	s.log.Debug("connection removed", zap.String("id", id))
	s.Changes.Publish(Change{Connection: *removed, Change: Removed})
	return true, nil
}
