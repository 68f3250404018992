// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resolver determines which connection a document runs against.
//
// Resolution order, first valid candidate wins:
//
//  1. the connection stored in the document metadata (skipped when forced)
//  2. a kqlmagic directive in the document content
//  3. the per-document entry in the global store
//  4. the globally last used connection
//  5. the capture prompt, seeded with the best guess so far
//
// Steps 2 to 5 record the result as the per-document entry and as the last
// used connection. Only ChangeConnection writes document metadata.
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/events"
	"kqlnb/cli/internal/store"
)

// DefaultDebounce is how long directive edits settle before Changed fires.
const DefaultDebounce = 500 * time.Millisecond

// CapturePrompt asks the user for a connection. A nil result without error
// means the user cancelled.
type CapturePrompt interface {
	Ask(ctx context.Context, seed *connection.Info) (*connection.Info, error)
}

// PromptFunc adapts a function to CapturePrompt.
type PromptFunc func(ctx context.Context, seed *connection.Info) (*connection.Info, error)

func (f PromptFunc) Ask(ctx context.Context, seed *connection.Info) (*connection.Info, error) {
	return f(ctx, seed)
}

// Options configures a Resolver.
type Options struct {
	Store    store.Store
	Prompt   CapturePrompt
	Logger   *zap.Logger
	Debounce time.Duration
}

// Resolver resolves and changes document connections.
type Resolver struct {
	store    store.Store
	prompt   CapturePrompt
	log      *zap.Logger
	debounce time.Duration

	mu         sync.Mutex
	directives map[string]directive
	timers     map[string]pending
	seq        uint64

	// Changed fires when a document's connection changes.
	Changed *events.Topic[*document.Document]
}

type directive struct {
	info connection.Info
	ok   bool
}

// pending is a debounce timer. seq identifies the timer that currently owns
// the map entry.
type pending struct {
	timer *time.Timer
	seq   uint64
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Resolver{
		store:      opts.Store,
		prompt:     opts.Prompt,
		log:        log,
		debounce:   debounce,
		directives: make(map[string]directive),
		timers:     make(map[string]pending),
		Changed:    events.NewTopic[*document.Document](),
	}
}

// Resolve returns the connection doc should run against, prompting when none
// can be determined or when forceReprompt is set. It returns nil when the user
// cancels the prompt.
func (r *Resolver) Resolve(ctx context.Context, doc *document.Document, forceReprompt bool) (*connection.Info, error) {
	var seed *connection.Info
	consider := func(info *connection.Info) bool {
		if info == nil {
			return false
		}
		if seed == nil {
			seed = info
		}
		return !forceReprompt && connection.IsValid(info)
	}

	if info := r.fromMetadata(doc); consider(info) {
		r.seedLastUsed(ctx, *info)
		return info, nil
	}
	if info := r.fromDirective(doc); consider(info) {
		r.Remember(ctx, doc, *info)
		return info, nil
	}
	if info := r.fromDocumentEntry(ctx, doc); consider(info) {
		r.Remember(ctx, doc, *info)
		return info, nil
	}
	if info := r.lastUsed(ctx); consider(info) {
		r.Remember(ctx, doc, *info)
		return info, nil
	}

	if r.prompt == nil {
		return nil, kerrors.New(kerrors.ResolutionFailure, "no connection for "+doc.URI)
	}
	info, err := r.prompt.Ask(ctx, seed)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, kerrors.Wrap(kerrors.ResolutionFailure, "capture connection", err)
	}
	if !connection.IsValid(info) {
		return nil, nil
	}
	r.Remember(ctx, doc, *info)
	return info, nil
}

// Current returns the connection doc would resolve to without prompting and
// without recording anything.
func (r *Resolver) Current(ctx context.Context, doc *document.Document) *connection.Info {
	for _, info := range []*connection.Info{
		r.fromMetadata(doc),
		r.fromDirective(doc),
		r.fromDocumentEntry(ctx, doc),
		r.lastUsed(ctx),
	} {
		if connection.IsValid(info) {
			return info
		}
	}
	return nil
}

// ChangeConnection reprompts for doc's connection. Kusto notebooks get the
// choice written into their metadata. Changed fires unless the user cancels
// or picks the connection already in use.
func (r *Resolver) ChangeConnection(ctx context.Context, doc *document.Document) (*connection.Info, error) {
	current := r.Current(ctx, doc)
	info, err := r.Resolve(ctx, doc, true)
	if err != nil || info == nil {
		return nil, err
	}
	if current != nil && connection.Encode(*current) == connection.Encode(*info) {
		return info, nil
	}
	r.Apply(doc, *info)
	return info, nil
}

// Apply binds doc to info without prompting: Kusto notebooks get the
// connection written into their metadata and Changed fires.
func (r *Resolver) Apply(doc *document.Document, info connection.Info) {
	if doc.IsKustoNotebook() {
		doc.SetConnection(info)
	}
	r.log.Debug("document connection changed",
		zap.String("document", doc.URI),
		zap.String("connection", info.ID))
	r.Changed.Publish(doc)
}

// Remember records info as doc's per-document entry and as the last used
// connection. Store failures are logged; they never fail resolution.
func (r *Resolver) Remember(ctx context.Context, doc *document.Document, info connection.Info) {
	if err := store.SetJSON(ctx, r.store, store.Global, doc.Key(), info); err != nil {
		r.log.Warn("failed to save document connection", zap.String("document", doc.URI), zap.Error(err))
	}
	if err := store.SetJSON(ctx, r.store, store.Global, store.KeyLastUsedConnection, info); err != nil {
		r.log.Warn("failed to save last used connection", zap.Error(err))
	}
}

// seedLastUsed makes info the last used connection if none was ever recorded.
func (r *Resolver) seedLastUsed(ctx context.Context, info connection.Info) {
	if r.lastUsed(ctx) != nil {
		return
	}
	if err := store.SetJSON(ctx, r.store, store.Global, store.KeyLastUsedConnection, info); err != nil {
		r.log.Warn("failed to save last used connection", zap.Error(err))
	}
}

func (r *Resolver) fromMetadata(doc *document.Document) *connection.Info {
	info, ok := doc.Connection()
	if !ok {
		return nil
	}
	return &info
}

func (r *Resolver) fromDirective(doc *document.Document) *connection.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, cached := r.directives[doc.Key()]
	if !cached {
		if src, ok := doc.DirectiveSource(); ok {
			d.info, d.ok = connection.ParseDirective(src)
			if !d.ok {
				r.log.Warn("failed to parse connection directive", zap.String("document", doc.URI))
			}
		}
		r.directives[doc.Key()] = d
	}
	if !d.ok {
		return nil
	}
	info := d.info
	return &info
}

func (r *Resolver) fromDocumentEntry(ctx context.Context, doc *document.Document) *connection.Info {
	return r.load(ctx, doc.Key())
}

func (r *Resolver) lastUsed(ctx context.Context) *connection.Info {
	return r.load(ctx, store.KeyLastUsedConnection)
}

func (r *Resolver) load(ctx context.Context, key string) *connection.Info {
	var info connection.Info
	ok, err := store.GetJSON(ctx, r.store, store.Global, key, &info)
	if err != nil {
		r.log.Warn("failed to read stored connection", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &info
}

// NotifyContentChanged tells the resolver that a directive cell of doc was
// edited. The cached directive is dropped and Changed fires once edits have
// settled for the debounce interval.
func (r *Resolver) NotifyContentChanged(doc *document.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := doc.Key()
	delete(r.directives, key)
	if p, ok := r.timers[key]; ok {
		p.timer.Stop()
	}
	r.seq++
	seq := r.seq
	r.timers[key] = pending{
		timer: time.AfterFunc(r.debounce, func() { r.settle(doc, seq) }),
		seq:   seq,
	}
}

// settle publishes Changed for doc unless the timer seq was replaced or
// stopped after it fired.
func (r *Resolver) settle(doc *document.Document, seq uint64) {
	key := doc.Key()
	r.mu.Lock()
	p, ok := r.timers[key]
	if !ok || p.seq != seq {
		r.mu.Unlock()
		return
	}
	delete(r.timers, key)
	r.mu.Unlock()
	r.Changed.Publish(doc)
}

// Forget drops everything cached for doc. Call it when doc closes.
func (r *Resolver) Forget(doc *document.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.directives, doc.Key())
	if p, ok := r.timers[doc.Key()]; ok {
		p.timer.Stop()
		delete(r.timers, doc.Key())
	}
}

// Close stops pending debounce timers.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, p := range r.timers {
		p.timer.Stop()
		delete(r.timers, k)
	}
}
