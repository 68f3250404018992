// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/execution"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/resolver"
	"kqlnb/cli/internal/session"
	"kqlnb/cli/internal/store"
)

type fakeClient struct {
	block bool
}

func (c *fakeClient) Execute(ctx context.Context, _, _ string) (*kusto.ResultSet, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t := kusto.Table{Name: kusto.PrimaryResultName, Columns: []kusto.Column{{Name: "x", Type: "int"}}, Rows: [][]any{{1}}}
	return &kusto.ResultSet{Tables: []kusto.Table{t}, TableNames: []string{t.Name}}, nil
}

func (c *fakeClient) Close() error { return nil }

type fakeFactory struct{ client *fakeClient }

func (f fakeFactory) NewClient(context.Context, connection.Info) (session.Client, error) {
	return f.client, nil
}

type fixture struct {
	store    *store.Memory
	resolver *resolver.Resolver
	recent   *connection.Recent
	registry *Registry
	answer   *connection.Info
}

func newFixture(t *testing.T, client *fakeClient) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory()}
	f.resolver = resolver.New(resolver.Options{
		Store: f.store,
		Prompt: resolver.PromptFunc(func(context.Context, *connection.Info) (*connection.Info, error) {
			return f.answer, nil
		}),
	})
	t.Cleanup(f.resolver.Close)
	f.recent = connection.NewRecent(f.store, nil)
	sessions := session.NewCache(f.resolver, fakeFactory{client: client}, nil)
	t.Cleanup(sessions.Clear)
	f.registry = NewRegistry(Options{Resolver: f.resolver, Sessions: sessions, Recent: f.recent})
	t.Cleanup(f.registry.Dispose)
	return f
}

var help = connection.NewAzureAuth("https://help.kusto.windows.net", "Samples")

func TestGetOrCreate_Dedup(t *testing.T) {
	f := newFixture(t, &fakeClient{})
	a := f.registry.GetOrCreate(document.KindKustoNotebook, help)

	same, ok := connection.FromMetadata(map[string]any{"connection": map[string]any{
		"database":    "Samples",
		"cluster":     "https://help.kusto.windows.net",
		"type":        "azAuth",
		"displayName": "help",
		"id":          "https://help.kusto.windows.net",
	}})
	require.True(t, ok)
	assert.Same(t, a, f.registry.GetOrCreate(document.KindKustoNotebook, same))

	b := f.registry.GetOrCreate(document.KindInteractive, help)
	assert.NotSame(t, a, b)
	assert.Len(t, f.registry.Executors(), 2)
	assert.Equal(t, "Kusto help (Samples)", a.Label())
}

func TestRemoveConnection_DisposesExecutors(t *testing.T) {
	f := newFixture(t, &fakeClient{})
	conns := connection.NewStorage(f.store, nil)
	defer f.registry.Watch(conns)()

	other := connection.NewAzureAuth("https://other.kusto.windows.net", "db")
	require.NoError(t, conns.Add(context.Background(), help))
	require.NoError(t, conns.Add(context.Background(), other))

	e1 := f.registry.GetOrCreate(document.KindKustoNotebook, help)
	e2 := f.registry.GetOrCreate(document.KindKustoNotebookKQL, help.WithDatabase("Other"))
	e3 := f.registry.GetOrCreate(document.KindKustoNotebook, other)

	removed, err := conns.Remove(context.Background(), help.ID)
	require.NoError(t, err)
	require.True(t, removed)

	assert.True(t, e1.Disposed())
	assert.True(t, e2.Disposed())
	assert.False(t, e3.Disposed())
	assert.Equal(t, []*Executor{e3}, f.registry.Executors())
}

func TestPicker_Select(t *testing.T) {
	f := newFixture(t, &fakeClient{})
	doc := document.New("file:///a.knb", document.KindKustoNotebook, nil, nil)
	p, ok := f.registry.Picker(document.KindKustoNotebook)
	require.True(t, ok)

	f.answer = &help
	e, err := p.Select(context.Background(), doc)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, connection.Encode(help), connection.Encode(e.Connection))

	got, ok := doc.Connection()
	require.True(t, ok)
	assert.Equal(t, help, got)

	recent, err := f.recent.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []connection.Info{help}, recent)

	next, _ := f.registry.Picker(document.KindKustoNotebook)
	assert.NotEqual(t, p.ID, next.ID, "picker must be replaced after use")

	// Cancelling still retires the picker.
	f.answer = nil
	e, err = next.Select(context.Background(), doc)
	require.NoError(t, err)
	assert.Nil(t, e)
	last, _ := f.registry.Picker(document.KindKustoNotebook)
	assert.NotEqual(t, next.ID, last.ID)
}

func TestRegisterRecent(t *testing.T) {
	f := newFixture(t, &fakeClient{})
	require.NoError(t, f.recent.Add(context.Background(), help))
	require.NoError(t, f.registry.RegisterRecent(context.Background()))
	assert.Len(t, f.registry.Executors(), len(document.NotebookKinds))
	for _, kind := range document.NotebookKinds {
		_, ok := f.registry.Find(kind, help)
		assert.True(t, ok, kind)
	}
}

func TestExecuteCells_WritesOutputs(t *testing.T) {
	f := newFixture(t, &fakeClient{})
	doc := document.New("file:///a.knb", document.KindKustoNotebook, []document.Cell{
		{Kind: document.CellCode, Source: "T | take 1"},
		{Kind: document.CellCode, Source: "T | count"},
	}, nil)
	e := f.registry.GetOrCreate(document.KindKustoNotebook, help)
	e.Select(context.Background(), doc)

	outs := e.ExecuteCells(context.Background(), doc, []int{0, 1})
	require.Len(t, outs, 2)
	for i, o := range outs {
		assert.Equal(t, execution.Succeeded, o.Record.State)
		cell, _ := doc.Cell(i)
		require.Len(t, cell.Outputs, 1)
		assert.Equal(t, document.MIMEResult, cell.Outputs[0].MIME)
	}
	assert.Equal(t, 0, e.Running())
}

func TestCancelAll(t *testing.T) {
	f := newFixture(t, &fakeClient{block: true})
	doc := document.New("file:///a.knb", document.KindKustoNotebook, []document.Cell{
		{Kind: document.CellCode, Source: "T"},
	}, nil)
	e := f.registry.GetOrCreate(document.KindKustoNotebook, help)

	done := make(chan []execution.Outcome, 1)
	go func() { done <- e.ExecuteCells(context.Background(), doc, []int{0}) }()
	require.Eventually(t, func() bool { return e.Running() == 1 }, 2*time.Second, 5*time.Millisecond)

	e.CancelAll()
	outs := <-done
	assert.Equal(t, execution.Cancelled, outs[0].Record.State)
	cell, _ := doc.Cell(0)
	assert.Empty(t, cell.Outputs)

	e.Dispose()
	outs = e.ExecuteCells(context.Background(), doc, []int{0})
	assert.Equal(t, execution.Cancelled, outs[0].Record.State)
}
