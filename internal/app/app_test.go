// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kqlnb/cli/internal/config"
	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/keychain"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/resolver"
	"kqlnb/cli/internal/session"
	"kqlnb/cli/internal/store"
)

type fakeBackend struct {
	clients atomic.Int32
	fetches atomic.Int32
}

type fakeClient struct{}

func (fakeClient) Execute(context.Context, string, string) (*kusto.ResultSet, error) {
	t := kusto.Table{Name: kusto.PrimaryResultName, Columns: []kusto.Column{{Name: "n", Type: "long"}}, Rows: [][]any{{int64(1)}}}
	return &kusto.ResultSet{Tables: []kusto.Table{t}, TableNames: []string{t.Name}}, nil
}

func (fakeClient) Close() error { return nil }

func (b *fakeBackend) NewClient(context.Context, connection.Info) (session.Client, error) {
	b.clients.Add(1)
	return fakeClient{}, nil
}

func (b *fakeBackend) FetchSchema(context.Context, connection.Info) (*kusto.EngineSchema, error) {
	b.fetches.Add(1)
	return &kusto.EngineSchema{Databases: []kusto.DatabaseSchema{{Name: "db", Tables: []kusto.TableSchema{{Name: "T"}}}}}, nil
}

var cluster = connection.NewAzureAuth("fake://c1", "db")

func newApp(t *testing.T) (*App, *fakeBackend) {
	t.Helper()
	a, err := New(Options{
		Config:  config.Config{LogLevel: "info", Workspace: t.TempDir()},
		Store:   store.NewMemory(),
		Secrets: keychain.NewWithKeyring(keyring.NewArrayKeyring(nil)),
		Prompt: resolver.PromptFunc(func(context.Context, *connection.Info) (*connection.Info, error) {
			c := cluster
			return &c, nil
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b := &fakeBackend{}
	a.Backends.Register(b, "fake")
	return a, b
}

func writeNotebook(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "q.knb")
	require.NoError(t, os.WriteFile(p, []byte(`{"cells":[{"cell_type":"code","source":"T | count"}],"metadata":{}}`), 0o600))
	return p
}

func TestRunNotebookThroughPicker(t *testing.T) {
	a, b := newApp(t)
	ctx := context.Background()

	doc, err := a.Open(writeNotebook(t), "")
	require.NoError(t, err)

	p, ok := a.Kernels.Picker(document.KindKustoNotebook)
	require.True(t, ok)
	e, err := p.Select(ctx, doc)
	require.NoError(t, err)
	require.NotNil(t, e)

	info, ok := doc.Connection()
	require.True(t, ok)
	assert.Equal(t, cluster.Cluster, info.Cluster)

	outcomes := e.ExecuteCells(ctx, doc, []int{0})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Record.Success)
	assert.Equal(t, int32(1), b.clients.Load())
	assert.Equal(t, 1, a.Sessions.Len())

	a.CloseDocument(doc)
	assert.Equal(t, 0, a.Sessions.Len(), "closing the document drops its session")
}

func TestConnectionLifecycle(t *testing.T) {
	a, b := newApp(t)
	ctx := context.Background()

	require.NoError(t, a.Connections.Add(ctx, cluster))
	infos, err := a.LoadConnections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Len(t, a.Explorer.Clusters(), 1)
	assert.Equal(t, int32(1), b.fetches.Load())

	a.Kernels.GetOrCreate(document.KindKustoNotebook, cluster)
	require.Len(t, a.Kernels.Executors(), 1)

	removed, err := a.Connections.Remove(ctx, cluster.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, a.Explorer.Clusters())
	assert.Empty(t, a.Kernels.Executors())
}

func TestVariablesFollowConnection(t *testing.T) {
	a, _ := newApp(t)
	ctx := context.Background()

	doc, err := a.Open(writeNotebook(t), "")
	require.NoError(t, err)

	var fired int
	a.Variables.Changed.Subscribe(func(*document.Document) { fired++ })

	a.Resolver.Apply(doc, cluster)
	assert.Equal(t, 1, fired)

	vars, err := a.Variables.Variables(ctx, doc)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Contains(t, vars[0].Value, "1. T()")
}

func TestNewRegistersRecentConnections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, connection.NewRecent(st, nil).Add(ctx, cluster))

	a, err := New(Options{
		Config:  config.Config{LogLevel: "info", Workspace: t.TempDir()},
		Store:   st,
		Secrets: keychain.NewWithKeyring(keyring.NewArrayKeyring(nil)),
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.Kernels.Executors(), len(document.NotebookKinds))
	_, ok := a.Kernels.Find(document.KindKustoNotebook, cluster)
	assert.True(t, ok)
}
