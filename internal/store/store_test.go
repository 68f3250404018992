// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func implementations(t *testing.T) map[string]func(workspace string) Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func(string) Store{
		"memory": func(string) Store { return NewMemory() },
		"sqlite": func(workspace string) Store {
			s, err := OpenSQLite(filepath.Join(dir, workspace+".db"), workspace)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open("ws")

			_, ok, err := s.Get(ctx, Global, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, Global, "k", []byte("v1")))
			require.NoError(t, s.Set(ctx, Global, "k", []byte("v2")))
			v, ok, err := s.Get(ctx, Global, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v2"), v)

			_, ok, err = s.Get(ctx, Workspace, "k")
			require.NoError(t, err)
			assert.False(t, ok, "scopes must not share keys")

			require.NoError(t, s.Delete(ctx, Global, "k"))
			require.NoError(t, s.Delete(ctx, Global, "k"))
			_, ok, err = s.Get(ctx, Global, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, SetJSON(ctx, s, Workspace, KeyRecentConnections, []string{"a", "b"}))

	var got []string
	ok, err := GetJSON(ctx, s, Workspace, KeyRecentConnections, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, s.Set(ctx, Global, "bad", []byte("{")))
	_, err = GetJSON(ctx, s, Global, "bad", &got)
	assert.Error(t, err)
}

func TestSQLite_WorkspacePartitionAndPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := OpenSQLite(path, "alpha")
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, Workspace, "k", []byte("alpha")))
	require.NoError(t, a.Set(ctx, Global, "g", []byte("shared")))
	require.NoError(t, a.Close())

	b, err := OpenSQLite(path, "beta")
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get(ctx, Workspace, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := b.Get(ctx, Global, "g")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("shared"), v)
}
