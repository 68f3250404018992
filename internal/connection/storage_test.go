// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kqlnb/cli/internal/store"
)

func TestStorage_AddRemoveNotifies(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(store.NewMemory(), nil)

	var changes []Change
	s.Changes.Subscribe(func(c Change) { changes = append(changes, c) })

	help := NewAzureAuth("https://help.kusto.windows.net", "")
	app := NewAppInsights("app", "App")

	require.NoError(t, s.Add(ctx, help))
	require.NoError(t, s.Add(ctx, help))
	require.NoError(t, s.Add(ctx, app))

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Info{help, app}, infos)

	removed, err := s.Remove(ctx, help.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(ctx, help.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []Change{
		{Connection: help, Change: Added},
		{Connection: app, Change: Added},
		{Connection: help, Change: Removed},
	}, changes)

	_, found, err := s.Find(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStorage_AddReplacesSameID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(store.NewMemory(), nil)

	first := NewAzureAuth("https://help.kusto.windows.net", "")
	renamed := first
	renamed.DisplayName = "Help cluster"

	require.NoError(t, s.Add(ctx, first))
	require.NoError(t, s.Add(ctx, renamed))

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Info{renamed}, infos)
}

func TestRecent_DeduplicatesInFirstUseOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewRecent(mem, nil)

	a := NewAzureAuth("https://a.kusto.windows.net", "db")
	b := NewAzureAuth("https://b.kusto.windows.net", "db")

	require.NoError(t, r.Add(ctx, a))
	require.NoError(t, r.Add(ctx, b))
	require.NoError(t, r.Add(ctx, a))

	infos, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Info{a, b}, infos)

	var keys []Key
	ok, err := store.GetJSON(ctx, mem, store.Workspace, store.KeyRecentConnections, &keys)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Key{Encode(a), Encode(b)}, keys)
}

func TestRecent_SkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	a := NewAzureAuth("https://a.kusto.windows.net", "db")
	require.NoError(t, store.SetJSON(ctx, mem, store.Workspace, store.KeyRecentConnections, []Key{"%%%", Encode(a)}))

	infos, err := NewRecent(mem, nil).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Info{a}, infos)
}
