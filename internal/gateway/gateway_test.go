// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gateway

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"kqlnb/cli/internal/kusto"
)

type fakeUpstream struct {
	database, query string
	err             error
}

func (u *fakeUpstream) Execute(_ context.Context, database, query string) (*kusto.ResultSet, error) {
	u.database, u.query = database, query
	if u.err != nil {
		return nil, u.err
	}
	t := kusto.Table{
		Name:    kusto.PrimaryResultName,
		Kind:    kusto.PrimaryResultName,
		Columns: []kusto.Column{{Name: "n", Type: "long"}, {Name: "s", Type: "string"}},
		Rows:    [][]any{{1, "a"}, {2, nil}},
	}
	return &kusto.ResultSet{Tables: []kusto.Table{t}, TableNames: []string{t.Name}, PrimaryResults: []kusto.Table{t}}, nil
}

func (u *fakeUpstream) FetchSchema(context.Context) (*kusto.EngineSchema, error) {
	return &kusto.EngineSchema{
		Cluster:   "postgresql://u@h:5432/app",
		Databases: []kusto.DatabaseSchema{{Name: "public", Tables: []kusto.TableSchema{{Name: "users", EntityType: kusto.EntityTable, Columns: []kusto.ColumnSchema{}}}, Functions: []kusto.FunctionSchema{}}},
	}, nil
}

func startServer(t *testing.T, up Upstream, token string) func(string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(up, token, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	return func(clientToken string) *Client {
		c, err := Dial("grpc://bufnet:1", clientToken,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
}

func TestExecute_RoundTrip(t *testing.T) {
	up := &fakeUpstream{}
	c := startServer(t, up, "secret")("secret")

	rs, err := c.Execute(context.Background(), "public", "select 1")
	require.NoError(t, err)
	assert.Equal(t, "public", up.database)
	assert.Equal(t, "select 1", up.query)

	require.Len(t, rs.PrimaryResults, 1)
	p := rs.PrimaryResults[0]
	assert.Equal(t, []kusto.Column{{Name: "n", Type: "long"}, {Name: "s", Type: "string"}}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, json.Number("1"), p.Rows[0][0])
	assert.Equal(t, "a", p.Rows[0][1])
	assert.Nil(t, p.Rows[1][1])
	assert.Equal(t, []string{kusto.PrimaryResultName}, rs.TableNames)
}

func TestExecute_QueryError(t *testing.T) {
	up := &fakeUpstream{err: &kusto.QueryError{Code: "42P01", Message: "no such table", InnerMessage: "users2"}}
	c := startServer(t, up, "")("")

	_, err := c.Execute(context.Background(), "", "select * from users2")
	var qe *kusto.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "no such table", qe.Message)
	assert.Equal(t, "users2", qe.InnerMessage)
	assert.Equal(t, "42P01", qe.Code)
}

func TestExecute_Unauthenticated(t *testing.T) {
	c := startServer(t, &fakeUpstream{}, "secret")("wrong")
	_, err := c.Execute(context.Background(), "", "select 1")
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestExecute_EmptyQuery(t *testing.T) {
	c := startServer(t, &fakeUpstream{}, "")("")
	_, err := c.Execute(context.Background(), "", "  ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFetchSchema(t *testing.T) {
	c := startServer(t, &fakeUpstream{}, "")("")
	s, err := c.FetchSchema(context.Background())
	require.NoError(t, err)
	db, ok := s.Database("PUBLIC")
	require.True(t, ok)
	assert.Equal(t, "users", db.Tables[0].Name)
}

func TestTarget(t *testing.T) {
	tests := []struct {
		in, target, server string
		secure, wantErr    bool
	}{
		{in: "grpc://localhost:7070", target: "localhost:7070", server: "localhost"},
		{in: "grpcs://gw.example.com", target: "gw.example.com:443", server: "gw.example.com", secure: true},
		{in: "grpc://gw", target: "gw:80", server: "gw"},
		{in: "https://help.kusto.windows.net", wantErr: true},
		{in: "grpc://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			target, server, secure, err := Target(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.server, server)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestParseBearerToken(t *testing.T) {
	assert.Equal(t, "abc", parseBearerToken("Bearer abc"))
	assert.Equal(t, "abc", parseBearerToken("  bearer   abc "))
	assert.Empty(t, parseBearerToken("Basic abc"))
	assert.Empty(t, parseBearerToken("Bearer"))
	assert.Empty(t, parseBearerToken("Bearerabc"))
}
