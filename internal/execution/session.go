// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package execution runs one cell against a session and turns the result
// or failure into a display-ready Outcome.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/session"
)

// Sessions supplies the session a document runs against.
type Sessions interface {
	Get(ctx context.Context, doc *document.Document) (*session.Session, error)
}

// Runner executes cells.
type Runner struct {
	sessions Sessions
	log      *zap.Logger
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(sessions Sessions, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{sessions: sessions, log: log.Named("execution"), now: time.Now}
}

type reply struct {
	rs  *kusto.ResultSet
	err error
}

// Run executes cell i of doc. Failures never escape: they are captured in
// the Outcome. If ctx is cancelled before the query settles the outcome is
// Cancelled and a later result is discarded.
func (r *Runner) Run(ctx context.Context, doc *document.Document, i int) Outcome {
	rec := Record{ID: uuid.NewString(), Cell: i, State: Pending}
	finish := func(o Outcome, state State) Outcome {
		rec.State = state
		rec.Success = state == Succeeded
		rec.End = r.now()
		o.Record = rec
		r.log.Debug("cell finished",
			zap.String("document", doc.URI),
			zap.Int("cell", i),
			zap.String("state", string(state)),
			zap.Duration("elapsed", rec.Duration()))
		return o
	}

	rec.Start = r.now()
	rec.State = Running

	cell, ok := doc.Cell(i)
	if !ok || cell.Kind != document.CellCode {
		return finish(Outcome{Error: ClassifyError(nil)}, Failed)
	}
	if ctx.Err() != nil {
		return finish(Outcome{}, Cancelled)
	}

	s, err := r.sessions.Get(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return finish(Outcome{}, Cancelled)
		}
		return finish(Outcome{Error: ClassifyError(err)}, Failed)
	}
	if ctx.Err() != nil {
		return finish(Outcome{}, Cancelled)
	}

	query := connection.StripDirective(cell.Source)
	done := make(chan reply, 1)
	go func() {
		rs, err := s.Client.Execute(ctx, s.Connection.Database, query)
		done <- reply{rs, err}
	}()

	select {
	case <-ctx.Done():
		return finish(Outcome{}, Cancelled)
	case res := <-done:
		if ctx.Err() != nil {
			return finish(Outcome{}, Cancelled)
		}
		if res.err != nil {
			return finish(Outcome{Error: ClassifyError(res.err)}, Failed)
		}
		if res.rs == nil {
			return finish(Outcome{Error: ClassifyError(nil)}, Failed)
		}
		hint, viz := Normalize(res.rs)
		return finish(Outcome{Result: res.rs, Hint: hint, Visualization: viz}, Succeeded)
	}
}
