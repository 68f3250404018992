// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package kernel keeps one executor per notebook kind and connection, plus a
// picker per kind that lets the user choose a connection.
package kernel

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/session"
)

// Resolver is the subset of resolver.Resolver the kernel uses.
type Resolver interface {
	Current(ctx context.Context, doc *document.Document) *connection.Info
	ChangeConnection(ctx context.Context, doc *document.Document) (*connection.Info, error)
	Apply(doc *document.Document, info connection.Info)
	Remember(ctx context.Context, doc *document.Document, info connection.Info)
}

// Sessions hands out sessions bound to a given connection.
type Sessions interface {
	GetFor(ctx context.Context, doc *document.Document, info connection.Info) (*session.Session, error)
}

// Recents is the recently used connections list.
type Recents interface {
	List(ctx context.Context) ([]connection.Info, error)
	Add(ctx context.Context, info connection.Info) error
}

// Options configures a Registry.
type Options struct {
	Resolver Resolver
	Sessions Sessions
	Recent   Recents
	Logger   *zap.Logger
}

type deps struct {
	resolver Resolver
	sessions Sessions
	recent   Recents
	log      *zap.Logger
}

// Registry owns every executor and picker.
type Registry struct {
	deps *deps

	mu        sync.Mutex
	executors map[string]*Executor
	pickers   map[document.Kind]*Picker
}

// NewRegistry creates a Registry with one picker per notebook kind.
func NewRegistry(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		deps: &deps{
			resolver: opts.Resolver,
			sessions: opts.Sessions,
			recent:   opts.Recent,
			log:      log.Named("kernel"),
		},
		executors: make(map[string]*Executor),
		pickers:   make(map[document.Kind]*Picker),
	}
	for _, kind := range document.NotebookKinds {
		r.pickers[kind] = newPicker(kind, r)
	}
	return r
}

func executorID(kind document.Kind, info connection.Info) string {
	return string(kind) + "_" + string(connection.Encode(info))
}

// GetOrCreate returns the executor for (kind, info), creating it on first use.
// Logically equal connections share one executor.
func (r *Registry) GetOrCreate(kind document.Kind, info connection.Info) *Executor {
	id := executorID(kind, info)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.executors[id]; ok {
		return e
	}
	e := newExecutor(id, kind, info, r.deps)
	r.executors[id] = e
	r.deps.log.Debug("executor registered", zap.String("kind", string(kind)), zap.String("connection", info.ID))
	return e
}

// Find returns the executor for (kind, info) if one is registered.
func (r *Registry) Find(kind document.Kind, info connection.Info) (*Executor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID(kind, info)]
	return e, ok
}

// RegisterRecent creates executors for every recently used connection and
// every notebook kind.
func (r *Registry) RegisterRecent(ctx context.Context) error {
	infos, err := r.deps.recent.List(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		for _, kind := range document.NotebookKinds {
			r.GetOrCreate(kind, info)
		}
	}
	return nil
}

// RemoveConnection disposes and unregisters every executor bound to the
// connection id. It returns how many were removed.
func (r *Registry) RemoveConnection(id string) int {
	r.mu.Lock()
	var removed []*Executor
	for key, e := range r.executors {
		if e.Connection.ID == id {
			removed = append(removed, e)
			delete(r.executors, key)
		}
	}
	r.mu.Unlock()
	for _, e := range removed {
		e.Dispose()
	}
	return len(removed)
}

// Watch disposes executors whose connection is removed from s.
func (r *Registry) Watch(s *connection.Storage) (unsubscribe func()) {
	return s.Changes.Subscribe(func(c connection.Change) {
		if c.Change == connection.Removed {
			r.RemoveConnection(c.Connection.ID)
		}
	})
}

// Executors returns the registered executors sorted by id.
func (r *Registry) Executors() []*Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Executor, 0, len(r.executors))
	for _, e := range r.executors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Picker returns the current picker for kind.
func (r *Registry) Picker(kind document.Kind) (*Picker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pickers[kind]
	return p, ok
}

// retire replaces p with a fresh picker if p is still the current one.
func (r *Registry) retire(p *Picker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pickers[p.Kind] == p {
		r.pickers[p.Kind] = newPicker(p.Kind, r)
	}
}

// Dispose disposes every executor.
func (r *Registry) Dispose() {
	r.mu.Lock()
	all := make([]*Executor, 0, len(r.executors))
	for key, e := range r.executors {
		all = append(all, e)
		delete(r.executors, key)
	}
	r.mu.Unlock()
	for _, e := range all {
		e.Dispose()
	}
}
