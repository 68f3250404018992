// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kernel

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/execution"
	"kqlnb/cli/internal/session"
)

// Executor runs cells of one notebook kind against one connection.
type Executor struct {
	ID         string
	Kind       document.Kind
	Connection connection.Info

	deps   *deps
	runner *execution.Runner

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	disposed bool
}

// boundSessions serves sessions bound to the executor's connection.
type boundSessions struct {
	sessions Sessions
	info     connection.Info
}

func (b boundSessions) Get(ctx context.Context, doc *document.Document) (*session.Session, error) {
	return b.sessions.GetFor(ctx, doc, b.info)
}

func newExecutor(id string, kind document.Kind, info connection.Info, d *deps) *Executor {
	return &Executor{
		ID:         id,
		Kind:       kind,
		Connection: info,
		deps:       d,
		runner:     execution.NewRunner(boundSessions{sessions: d.sessions, info: info}, d.log),
		running:    make(map[string]context.CancelFunc),
	}
}

// Label returns the picker label of the executor.
func (e *Executor) Label() string {
	label, _ := connection.DisplayInfo(e.Connection)
	return label
}

// Select binds doc to this executor's connection: Kusto notebooks get it in
// their metadata, and it becomes doc's stored entry and the last used
// connection.
func (e *Executor) Select(ctx context.Context, doc *document.Document) {
	cur := e.deps.resolver.Current(ctx, doc)
	if cur == nil || connection.Encode(*cur) != connection.Encode(e.Connection) {
		e.deps.resolver.Apply(doc, e.Connection)
	}
	e.deps.resolver.Remember(ctx, doc, e.Connection)
}

// ExecuteCells runs the given cells of doc concurrently and writes each
// outcome into the cell outputs. A failing cell never stops its siblings.
func (e *Executor) ExecuteCells(ctx context.Context, doc *document.Document, cells []int) []execution.Outcome {
	out := make([]execution.Outcome, len(cells))
	var g errgroup.Group
	for n, i := range cells {
		g.Go(func() error {
			out[n] = e.executeCell(ctx, doc, i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Executor) executeCell(ctx context.Context, doc *document.Document, i int) execution.Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	key := uuid.NewString()
	if !e.track(key, cancel) {
		return execution.Outcome{
			Record: execution.Record{Cell: i, State: execution.Cancelled},
		}
	}
	defer e.untrack(key)

	doc.SetOutputs(i, nil)
	o := e.runner.Run(ctx, doc, i)
	if o.Record.State == execution.Cancelled {
		return o
	}
	outs, err := o.Outputs()
	if err != nil {
		e.deps.log.Warn("render cell output", zap.String("document", doc.URI), zap.Int("cell", i), zap.Error(err))
		return o
	}
	doc.SetOutputs(i, outs)
	return o
}

func (e *Executor) track(key string, cancel context.CancelFunc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.running[key] = cancel
	return true
}

func (e *Executor) untrack(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, key)
}

// Running returns the number of cells currently executing.
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// CancelAll cancels every running cell.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.running {
		cancel()
	}
}

// Dispose cancels running cells and refuses new ones.
func (e *Executor) Dispose() {
	e.mu.Lock()
	e.disposed = true
	e.mu.Unlock()
	e.CancelAll()
}

// Disposed reports whether Dispose was called.
func (e *Executor) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}
