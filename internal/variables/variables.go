// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package variables exports notebook variables derived from the notebook's
// connection. Today that is kustoSchema, the schema listing of the active
// database.
package variables

import (
	"context"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/events"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/schema"
)

// SchemaVariable is the name of the exported schema listing.
const SchemaVariable = "kustoSchema"

// Variable is one named notebook variable.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// SchemaSource returns the cached schema of a connection.
type SchemaSource interface {
	Get(ctx context.Context, info connection.Info, ignoreCache bool) (*kusto.EngineSchema, error)
}

// Provider computes variables for notebooks.
type Provider struct {
	schemas SchemaSource
	unsub   func()

	// Changed fires for a notebook whose variables may have changed.
	Changed *events.Topic[*document.Document]
}

// NewProvider creates a Provider. When connectionChanged is set, Changed
// fires for every notebook whose connection changes.
func NewProvider(schemas SchemaSource, connectionChanged *events.Topic[*document.Document]) *Provider {
	p := &Provider{schemas: schemas, unsub: func() {}, Changed: events.NewTopic[*document.Document]()}
	if connectionChanged != nil {
		p.unsub = connectionChanged.Subscribe(func(doc *document.Document) {
			if doc.IsNotebook() {
				p.Changed.Publish(doc)
			}
		})
	}
	return p
}

// Variables returns the variables of doc. Documents without a valid
// connection in their metadata have none.
func (p *Provider) Variables(ctx context.Context, doc *document.Document) ([]Variable, error) {
	info, ok := doc.Connection()
	if !ok || !connection.IsValid(&info) {
		return nil, nil
	}
	s, err := p.schemas.Get(ctx, info, false)
	if err != nil {
		return nil, err
	}
	database := ""
	if info.Kind != connection.KindAppInsights {
		database = info.Database
	}
	return []Variable{{
		Name:  SchemaVariable,
		Value: schema.FormatForModel(s, database),
		Type:  "string",
	}}, nil
}

// Close stops listening for connection changes.
func (p *Provider) Close() {
	p.unsub()
}
