// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/events"
)

// Ref addresses one node in the explorer.
type Ref struct {
	Cluster string // connection id
	Index   int
}

// Explorer is the read model over every registered cluster. A cluster whose
// schema cannot be fetched stays in the explorer, marked errored, so it can
// still be removed.
type Explorer struct {
	cache *Cache
	log   *zap.Logger

	mu    sync.RWMutex
	trees map[string]*Tree
	order []string

	// Changed fires with a connection id whenever its tree changes or is removed.
	Changed *events.Topic[string]
}

// NewExplorer creates an empty Explorer backed by cache.
func NewExplorer(cache *Cache, log *zap.Logger) *Explorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Explorer{
		cache:   cache,
		log:     log.Named("explorer"),
		trees:   make(map[string]*Tree),
		Changed: events.NewTopic[string](),
	}
}

// Watch keeps the explorer in sync with removals from s.
func (e *Explorer) Watch(s *connection.Storage) (unsubscribe func()) {
	return s.Changes.Subscribe(func(c connection.Change) {
		if c.Change == connection.Removed {
			e.RemoveCluster(c.Connection.ID)
		}
	})
}

// AddConnection adds a cluster node for info and loads its schema. When the
// fetch fails the node is still added, marked errored, and the error returned.
func (e *Explorer) AddConnection(ctx context.Context, info connection.Info) error {
	info = info.WithDatabase("")
	e.mu.Lock()
	t, ok := e.trees[info.ID]
	if !ok {
		t = &Tree{Connection: info}
		t.build(nil)
		e.trees[info.ID] = t
		e.order = append(e.order, info.ID)
	}
	e.mu.Unlock()
	return e.load(ctx, info.ID, false)
}

// RefreshConnection re-fetches the schema of an existing cluster. On failure
// the node keeps its place and is marked errored.
func (e *Explorer) RefreshConnection(ctx context.Context, id string) error {
	return e.load(ctx, id, true)
}

func (e *Explorer) load(ctx context.Context, id string, ignoreCache bool) error {
	e.mu.RLock()
	t, ok := e.trees[id]
	var info connection.Info
	if ok {
		info = t.Connection
	}
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	s, err := e.cache.Get(ctx, info, ignoreCache)

	e.mu.Lock()
	if cur, ok := e.trees[id]; !ok || cur != t {
		// removed while fetching
		e.mu.Unlock()
		return err
	}
	t.build(s)
	t.Err = err
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("schema unavailable", zap.String("cluster", id), zap.Error(err))
	}
	e.Changed.Publish(id)
	return err
}

// Refresh re-fetches every cluster concurrently. Failures are logged per
// cluster and do not stop the others.
func (e *Explorer) Refresh(ctx context.Context) {
	var g errgroup.Group
	for _, id := range e.ids() {
		g.Go(func() error {
			_ = e.RefreshConnection(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// Load adds every connection concurrently, as done at startup.
func (e *Explorer) Load(ctx context.Context, infos []connection.Info) {
	var g errgroup.Group
	for _, info := range infos {
		g.Go(func() error {
			_ = e.AddConnection(ctx, info)
			return nil
		})
	}
	_ = g.Wait()
}

// RemoveCluster drops the cluster node for id.
func (e *Explorer) RemoveCluster(id string) bool {
	e.mu.Lock()
	_, ok := e.trees[id]
	if ok {
		delete(e.trees, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()
	if ok {
		e.Changed.Publish(id)
	}
	return ok
}

func (e *Explorer) ids() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.order...)
}

// Clusters returns snapshots of every tree in insertion order.
func (e *Explorer) Clusters() []Tree {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Tree, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.copyTree(e.trees[id]))
	}
	return out
}

// Tree returns a snapshot of the tree for a connection id.
func (e *Explorer) Tree(id string) (Tree, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trees[id]
	if !ok {
		return Tree{}, false
	}
	return e.copyTree(t), true
}

func (e *Explorer) copyTree(t *Tree) Tree {
	c := *t
	c.Nodes = append([]Node(nil), t.Nodes...)
	return c
}

// ConnectionOf returns the connection for the node at ref, bound to the
// enclosing database when there is one.
func (e *Explorer) ConnectionOf(ref Ref) (connection.Info, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trees[ref.Cluster]
	if !ok {
		return connection.Info{}, false
	}
	return t.ConnectionAt(ref.Index)
}

// SampleQuery returns the connection and starter query for a database or
// table node, as used when opening a new notebook from the tree.
func (e *Explorer) SampleQuery(ref Ref) (connection.Info, string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trees[ref.Cluster]
	if !ok {
		return connection.Info{}, "", false
	}
	info, ok := t.ConnectionAt(ref.Index)
	if !ok || info.Database == "" {
		return connection.Info{}, "", false
	}
	n, ok := t.Node(ref.Index)
	if !ok {
		return connection.Info{}, "", false
	}
	if n.Kind == NodeTable {
		return info, strings.Join([]string{n.Label, "| take 1"}, "\n"), true
	}
	return info, "", true
}
