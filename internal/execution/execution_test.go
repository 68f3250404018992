// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package execution

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	calls   atomic.Int32
	query   atomic.Value
	started chan struct{}
	release chan struct{}
	rs      *kusto.ResultSet
	err     error
}

func (c *fakeClient) Execute(_ context.Context, _, query string) (*kusto.ResultSet, error) {
	c.calls.Add(1)
	c.query.Store(query)
	if c.started != nil {
		close(c.started)
	}
	if c.release != nil {
		<-c.release
	}
	return c.rs, c.err
}

func (c *fakeClient) Close() error { return nil }

type fakeSessions struct {
	s   *session.Session
	err error
}

func (f fakeSessions) Get(context.Context, *document.Document) (*session.Session, error) {
	return f.s, f.err
}

var info = connection.Info{ID: "c1", DisplayName: "x", Kind: connection.KindAzureAuth, Cluster: "https://x", Database: "db1"}

func newDoc(source string) *document.Document {
	return document.New("file:///nb.knb", document.KindKustoNotebook,
		[]document.Cell{{Kind: document.CellCode, Source: source}, {Kind: document.CellMarkdown, Source: "# notes"}}, nil)
}

func primary(name string) kusto.Table {
	return kusto.Table{Name: name, Columns: []kusto.Column{{Name: "n", Type: "long"}}, Rows: [][]any{{json.Number("1")}}}
}

func TestRun_Succeeded(t *testing.T) {
	c := &fakeClient{rs: &kusto.ResultSet{
		Tables:     []kusto.Table{primary(kusto.PrimaryResultName), {Name: "QueryStatus"}},
		TableNames: []string{kusto.PrimaryResultName, "QueryStatus"},
	}}
	r := NewRunner(fakeSessions{s: &session.Session{Connection: info, Client: c}}, nil)
	doc := newDoc("%kql AzureDataExplorer://code;cluster='x';database='db1'\nT | take 1")

	o := r.Run(context.Background(), doc, 0)
	assert.Equal(t, Succeeded, o.Record.State)
	assert.True(t, o.Record.Success)
	assert.False(t, o.Record.End.Before(o.Record.Start))
	assert.NotEmpty(t, o.Record.ID)
	assert.Nil(t, o.Error)
	assert.Equal(t, "T | take 1", c.query.Load())

	require.NotNil(t, o.Result)
	require.Len(t, o.Result.PrimaryResults, 1)
	assert.Equal(t, []string{"QueryStatus"}, o.Result.TableNames)
	assert.Len(t, o.Result.Tables, 1)
	assert.Equal(t, HintTable, o.Hint)

	outs, err := o.Outputs()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, document.MIMEResult, outs[0].MIME)
}

func TestRun_SessionFailureSkipsRemote(t *testing.T) {
	c := &fakeClient{}
	r := NewRunner(fakeSessions{err: kerrors.New(kerrors.ResolutionFailure, "no connection")}, nil)

	o := r.Run(context.Background(), newDoc("T"), 0)
	assert.Equal(t, Failed, o.Record.State)
	assert.False(t, o.Record.Success)
	require.NotNil(t, o.Error)
	assert.Equal(t, string(kerrors.ResolutionFailure), o.Error.Name)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestRun_QueryFailure(t *testing.T) {
	c := &fakeClient{err: &kusto.QueryError{Message: "Syntax error", InnerMessage: "line 1"}}
	r := NewRunner(fakeSessions{s: &session.Session{Connection: info, Client: c}}, nil)

	o := r.Run(context.Background(), newDoc("T |"), 0)
	assert.Equal(t, Failed, o.Record.State)
	require.NotNil(t, o.Error)
	assert.Equal(t, "Syntax error (line 1)", o.Error.Message)
	assert.Nil(t, o.Result)

	outs, err := o.Outputs()
	require.NoError(t, err)
	assert.Equal(t, document.MIMEError, outs[0].MIME)
	assert.JSONEq(t, `{"name":"QueryError","message":"Syntax error (line 1)"}`, string(outs[0].Value))
}

func TestRun_CancellationWins(t *testing.T) {
	c := &fakeClient{
		started: make(chan struct{}),
		release: make(chan struct{}),
		rs:      &kusto.ResultSet{Tables: []kusto.Table{primary(kusto.PrimaryResultName)}},
	}
	r := NewRunner(fakeSessions{s: &session.Session{Connection: info, Client: c}}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan Outcome, 1)
	go func() { got <- r.Run(ctx, newDoc("T"), 0) }()
	<-c.started
	cancel()

	var o Outcome
	select {
	case o = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	// The remote call settles successfully after the outcome was produced.
	close(c.release)

	assert.Equal(t, Cancelled, o.Record.State)
	assert.Nil(t, o.Result)
	assert.Nil(t, o.Error)
	assert.False(t, o.Record.End.IsZero())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	c := &fakeClient{}
	r := NewRunner(fakeSessions{s: &session.Session{Connection: info, Client: c}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := r.Run(ctx, newDoc("T"), 0)
	assert.Equal(t, Cancelled, o.Record.State)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestRun_NonCodeCell(t *testing.T) {
	r := NewRunner(fakeSessions{}, nil)
	o := r.Run(context.Background(), newDoc("T"), 1)
	assert.Equal(t, Failed, o.Record.State)
	assert.Equal(t, BucketGeneric, o.Error.Bucket)
}

func TestNormalize_SynthesizesPrimary(t *testing.T) {
	p := primary(kusto.PrimaryResultName)
	rs := &kusto.ResultSet{
		Tables:     []kusto.Table{p, {Name: "Other"}},
		TableNames: []string{kusto.PrimaryResultName, "Other"},
	}
	hint, viz := Normalize(rs)
	assert.Equal(t, HintTable, hint)
	assert.Empty(t, viz)
	assert.Equal(t, []kusto.Table{p}, rs.PrimaryResults)
	for _, tbl := range rs.Tables {
		assert.NotEqual(t, kusto.PrimaryResultName, tbl.Name)
	}
	assert.Equal(t, []string{"Other"}, rs.TableNames)
}

func TestNormalize_KeepsExplicitPrimaryAndDetectsChart(t *testing.T) {
	explicit := primary("Table_0")
	rs := &kusto.ResultSet{
		Tables: []kusto.Table{
			primary(kusto.PrimaryResultName),
			{
				Name:    "@ExtendedProperties",
				Kind:    "QueryProperties",
				Columns: []kusto.Column{{Name: "TableId", Type: "int"}, {Name: "Key", Type: "string"}, {Name: "Value", Type: "dynamic"}},
				Rows:    [][]any{{json.Number("1"), "Visualization", `{"Visualization":"timechart"}`}},
			},
		},
		TableNames:     []string{kusto.PrimaryResultName, "@ExtendedProperties"},
		PrimaryResults: []kusto.Table{explicit},
	}
	hint, viz := Normalize(rs)
	assert.Equal(t, HintVisualize, hint)
	assert.Equal(t, "timechart", viz)
	assert.Equal(t, []kusto.Table{explicit}, rs.PrimaryResults)
	assert.Equal(t, []string{"@ExtendedProperties"}, rs.TableNames)

	o := Outcome{Result: rs, Hint: hint}
	outs, err := o.Outputs()
	require.NoError(t, err)
	assert.Equal(t, document.MIMEResultChart, outs[0].MIME)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		bucket Bucket
		msg    string
	}{
		{name: "nil", in: nil, bucket: BucketGeneric, msg: "Failed to execute query"},
		{name: "structured without inner", in: &kusto.QueryError{Message: "Bad request"}, bucket: BucketStructured, msg: "Bad request"},
		{name: "structured with inner", in: &kusto.QueryError{Message: "Bad request", InnerMessage: "Semantic error"}, bucket: BucketStructured, msg: "Bad request (Semantic error)"},
		{name: "wrapped structured", in: errors.Join(errors.New("ctx"), &kusto.QueryError{Message: "Bad"}), bucket: BucketStructured, msg: "Bad"},
		{name: "plain error", in: errors.New("dial tcp: refused"), bucket: BucketStructured, msg: "dial tcp: refused"},
		{name: "opaque with message", in: map[string]any{"message": "Throttled"}, bucket: BucketOpaque, msg: "Throttled"},
		{name: "opaque with inner", in: map[string]any{"message": "Throttled", "innererror": map[string]any{"message": "retry later"}}, bucket: BucketOpaque, msg: "Throttled (retry later)"},
		{name: "opaque without message", in: map[string]any{"code": 1}, bucket: BucketGeneric, msg: "Failed to execute query"},
		{name: "unknown value", in: 42, bucket: BucketGeneric, msg: "Failed to execute query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.bucket, got.Bucket)
			assert.Equal(t, tt.msg, got.Message)
		})
	}
}
