// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kernel

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kqlnb/cli/internal/document"
)

// PickerLabel is shown for the connection picker entry.
const PickerLabel = "Select a Kusto connection..."

// Picker is a placeholder executor that runs nothing. Selecting it prompts
// for a connection and hands the document to the real executor. A picker is
// used once: it is replaced by a fresh one after every selection.
type Picker struct {
	ID   string
	Kind document.Kind

	registry *Registry
}

func newPicker(kind document.Kind, r *Registry) *Picker {
	return &Picker{ID: "picker_" + string(kind) + "_" + uuid.NewString(), Kind: kind, registry: r}
}

// Select prompts for doc's connection and selects the matching executor.
// It returns nil without error when the user cancels.
func (p *Picker) Select(ctx context.Context, doc *document.Document) (*Executor, error) {
	defer p.registry.retire(p)
	d := p.registry.deps

	info, err := d.resolver.ChangeConnection(ctx, doc)
	if err != nil || info == nil {
		return nil, err
	}
	e := p.registry.GetOrCreate(p.Kind, *info)
	e.Select(ctx, doc)
	if err := d.recent.Add(ctx, *info); err != nil {
		d.log.Warn("record recent connection", zap.String("connection", info.ID), zap.Error(err))
	}
	return e, nil
}
