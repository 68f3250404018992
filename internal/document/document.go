// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package document models the editing surfaces queries are run from:
// Kusto notebooks (.knb), .kql files opened as notebooks or as plain text,
// Jupyter notebooks carrying kqlmagic cells, and interactive windows.
package document

import (
	"encoding/json"
	"maps"
	"strings"
	"sync"

	"kqlnb/cli/internal/connection"
)

// Kind is the notebook type (or "text" for plain documents).
type Kind string

const (
	KindKustoNotebook    Kind = "kusto-notebook"
	KindKustoNotebookKQL Kind = "kusto-notebook-kql"
	KindJupyter          Kind = "jupyter-notebook"
	KindInteractive      Kind = "interactive"
	KindText             Kind = "text"
)

// NotebookKinds are the kinds an executor can be registered for.
var NotebookKinds = []Kind{KindKustoNotebook, KindKustoNotebookKQL, KindInteractive}

// CellKind distinguishes runnable cells from prose.
type CellKind string

const (
	CellCode     CellKind = "code"
	CellMarkdown CellKind = "markdown"
)

// Output MIME types.
const (
	MIMEResult      = "application/vnd.kusto.result+json"
	MIMEResultChart = "application/vnd.kusto.result.viz+json"
	MIMEError       = "application/vnd.code.notebook.error"
)

// Output is one rendered cell output.
type Output struct {
	MIME  string          `json:"mime"`
	Value json.RawMessage `json:"value"`
}

// Cell is one unit of work in a document.
type Cell struct {
	Kind     CellKind       `json:"kind"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Outputs  []Output       `json:"outputs,omitempty"`
}

// Document is an open editing surface. It is safe for concurrent use.
type Document struct {
	URI  string
	Kind Kind

	mu       sync.RWMutex
	metadata map[string]any
	cells    []Cell
}

// New creates a document with the given cells and metadata.
func New(uri string, kind Kind, cells []Cell, metadata map[string]any) *Document {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Document{URI: uri, Kind: kind, cells: cells, metadata: metadata}
}

// Key is the normalized document identity: the lower-cased URI.
func (d *Document) Key() string {
	return strings.ToLower(d.URI)
}

// IsNotebook reports whether d is any kind of notebook or interactive window.
func (d *Document) IsNotebook() bool {
	return d.Kind != KindText
}

// IsKustoNotebook reports whether d stores its connection in its own metadata.
func (d *Document) IsKustoNotebook() bool {
	return d.Kind == KindKustoNotebook
}

// Metadata returns a shallow copy of the document metadata.
func (d *Document) Metadata() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.metadata)
}

// Connection returns the connection stored in the document metadata, if any.
func (d *Document) Connection() (connection.Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return connection.FromMetadata(d.metadata)
}

// SetConnection writes info into the document metadata.
func (d *Document) SetConnection(info connection.Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata["connection"] = info.Metadata()
}

// Cells returns a copy of the cells.
func (d *Document) Cells() []Cell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Cell, len(d.cells))
	copy(out, d.cells)
	return out
}

// Len returns the number of cells.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cells)
}

// Cell returns the cell at index i.
func (d *Document) Cell(i int) (Cell, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.cells) {
		return Cell{}, false
	}
	return d.cells[i], true
}

// SetOutputs replaces the outputs of cell i.
func (d *Document) SetOutputs(i int, outputs []Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= 0 && i < len(d.cells) {
		d.cells[i].Outputs = outputs
	}
}

// SetSource replaces the source of cell i. It reports whether either the
// old or the new source carries a connection directive.
func (d *Document) SetSource(i int, source string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.cells) {
		return false
	}
	old := d.cells[i].Source
	d.cells[i].Source = source
	return d.cells[i].Kind == CellCode && (connection.HasDirective(old) || connection.HasDirective(source))
}

// DirectiveSource returns the source of the first code cell whose first line
// is a connection directive.
func (d *Document) DirectiveSource() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.cells {
		if c.Kind == CellCode && connection.HasDirective(c.Source) {
			return c.Source, true
		}
	}
	return "", false
}
