// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session keeps at most one client session per open document.
//
// Get is single-flight: concurrent callers for the same document share one
// resolve-and-construct sequence. A failed sequence is evicted so the next
// call retries instead of replaying the failure.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/events"
	"kqlnb/cli/internal/kusto"
)

// Client runs queries against one connection.
type Client interface {
	Execute(ctx context.Context, database, query string) (*kusto.ResultSet, error)
	Close() error
}

// ClientFactory builds clients for connections.
type ClientFactory interface {
	NewClient(ctx context.Context, info connection.Info) (Client, error)
}

// Resolver determines the connection for a document. A nil result without
// error means nothing could be resolved.
type Resolver interface {
	Resolve(ctx context.Context, doc *document.Document, forceReprompt bool) (*connection.Info, error)
}

// Session is a client bound to one document and connection.
type Session struct {
	Document   *document.Document
	Connection connection.Info
	Client     Client
}

type entry struct {
	done    chan struct{}
	session *Session
	err     error
	evicted bool
}

// Cache memoizes sessions by document key.
type Cache struct {
	resolver Resolver
	factory  ClientFactory
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache creates an empty Cache.
func NewCache(r Resolver, f ClientFactory, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		resolver: r,
		factory:  f,
		log:      log.Named("session"),
		entries:  make(map[string]*entry),
	}
}

// Get returns the session for doc, resolving its connection and building a
// client on first use. A ResolutionFailure error means no connection could
// be determined.
func (c *Cache) Get(ctx context.Context, doc *document.Document) (*Session, error) {
	return c.get(ctx, doc, func(ctx context.Context) (*connection.Info, error) {
		return c.resolver.Resolve(ctx, doc, false)
	})
}

// GetFor returns a session for doc bound to info, replacing a cached session
// bound to a different connection.
func (c *Cache) GetFor(ctx context.Context, doc *document.Document, info connection.Info) (*Session, error) {
	want := connection.Encode(info)
	for {
		s, err := c.get(ctx, doc, func(context.Context) (*connection.Info, error) { return &info, nil })
		if err != nil || connection.Encode(s.Connection) == want {
			return s, err
		}
		c.evictSession(doc.Key(), s)
	}
}

func (c *Cache) get(ctx context.Context, doc *document.Document, resolve func(context.Context) (*connection.Info, error)) (*Session, error) {
	key := doc.Key()

	c.mu.Lock()
	for {
		e, ok := c.entries[key]
		if !ok {
			break
		}
		c.mu.Unlock()
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// The caller that started e was cancelled. The entry is gone, so a
		// caller whose own context is live starts over.
		if isContextErr(e.err) && ctx.Err() == nil {
			c.mu.Lock()
			continue
		}
		return e.session, e.err
	}
	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	s, err := c.construct(ctx, doc, resolve)
	if err != nil && ctx.Err() != nil && !isContextErr(err) {
		// A cancelled prompt resolves to nothing. Waiters still need to see
		// the cancellation.
		err = errors.Join(ctx.Err(), err)
	}

	c.mu.Lock()
	if e.evicted && s != nil {
		c.release(s)
		s, err = nil, kerrors.New(kerrors.SessionConstructionError, "document closed while the session was being created")
	}
	e.session, e.err = s, err
	if err != nil && c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	close(e.done)
	return s, err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) construct(ctx context.Context, doc *document.Document, resolve func(context.Context) (*connection.Info, error)) (*Session, error) {
	info, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, kerrors.New(kerrors.ResolutionFailure, "no connection selected for "+doc.URI)
	}
	client, err := c.factory.NewClient(ctx, *info)
	if err != nil {
		if kerrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, kerrors.Wrap(kerrors.SessionConstructionError, "create client for "+info.DisplayName, err)
	}
	c.log.Debug("session created", zap.String("document", doc.URI), zap.String("connection", info.ID))
	return &Session{Document: doc, Connection: *info, Client: client}, nil
}

// Evict drops the session for doc and releases its client. A session still
// being constructed is released as soon as construction finishes.
func (c *Cache) Evict(doc *document.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(doc.Key())
}

func (c *Cache) evictSession(key string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.session == s {
		c.evictLocked(key)
	}
}

func (c *Cache) evictLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	select {
	case <-e.done:
		if e.session != nil {
			c.release(e.session)
		}
	default:
		e.evicted = true
	}
}

func (c *Cache) release(s *Session) {
	if err := s.Client.Close(); err != nil {
		c.log.Debug("close client", zap.String("document", s.Document.URI), zap.Error(err))
	}
}

// Watch evicts sessions when their document closes or its connection changes.
func (c *Cache) Watch(closed, changed *events.Topic[*document.Document]) (unsubscribe func()) {
	var unsubs []func()
	if closed != nil {
		unsubs = append(unsubs, closed.Subscribe(c.Evict))
	}
	if changed != nil {
		unsubs = append(unsubs, changed.Subscribe(c.Evict))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Len returns the number of cached or pending sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear releases every session.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.evictLocked(key)
	}
}
