// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package document

import (
	"sort"
	"sync"

	"kqlnb/cli/internal/events"
)

// Tracker holds the currently open documents.
type Tracker struct {
	mu   sync.RWMutex
	docs map[string]*Document

	// Opened fires after a document is opened.
	Opened *events.Topic[*Document]
	// Closed fires after a document is closed.
	Closed *events.Topic[*Document]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		docs:   make(map[string]*Document),
		Opened: events.NewTopic[*Document](),
		Closed: events.NewTopic[*Document](),
	}
}

// Open registers d. Opening a document that is already open returns the
// existing instance.
func (t *Tracker) Open(d *Document) *Document {
	t.mu.Lock()
	if existing, ok := t.docs[d.Key()]; ok {
		t.mu.Unlock()
		return existing
	}
	t.docs[d.Key()] = d
	t.mu.Unlock()

	t.Opened.Publish(d)
	return d
}

// Get returns the open document with the given URI.
func (t *Tracker) Get(uri string) (*Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.docs[(&Document{URI: uri}).Key()]
	return d, ok
}

// Close unregisters d and notifies subscribers.
func (t *Tracker) Close(d *Document) {
	t.mu.Lock()
	existing, ok := t.docs[d.Key()]
	if ok {
		delete(t.docs, d.Key())
	}
	t.mu.Unlock()

	if ok {
		t.Closed.Publish(existing)
	}
}

// List returns the open documents ordered by URI.
func (t *Tracker) List() []*Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Document, 0, len(t.docs))
	for _, d := range t.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}
