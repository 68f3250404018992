// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/credentials"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/keychain"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/session"
)

type fakeBackend struct {
	err    error
	schema *kusto.EngineSchema
}

type nopClient struct{}

func (nopClient) Execute(context.Context, string, string) (*kusto.ResultSet, error) {
	return &kusto.ResultSet{}, nil
}
func (nopClient) Close() error { return nil }

func (f *fakeBackend) NewClient(context.Context, connection.Info) (session.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nopClient{}, nil
}

func (f *fakeBackend) FetchSchema(context.Context, connection.Info) (*kusto.EngineSchema, error) {
	return f.schema, f.err
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "https", Scheme(connection.NewAzureAuth("help.kusto.windows.net", "Samples")))
	assert.Equal(t, "postgresql", Scheme(connection.NewAzureAuth("PostgreSQL://u@h:5432/app", "public")))
	assert.Equal(t, "grpcs", Scheme(connection.NewAzureAuth("grpcs://gw.example.com", "")))
	assert.Equal(t, SchemeAppInsights, Scheme(connection.NewAppInsights("app-1", "")))
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	pg := &fakeBackend{schema: &kusto.EngineSchema{Cluster: "pg"}}
	r.Register(pg, "postgres", "POSTGRESQL")
	assert.Equal(t, []string{"postgres", "postgresql"}, r.Schemes())

	info := connection.NewAzureAuth("postgresql://u@h:5432/app", "public")
	c, err := r.NewClient(context.Background(), info)
	require.NoError(t, err)
	assert.NotNil(t, c)

	s, err := r.FetchSchema(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, "pg", s.Cluster)
	assert.NoError(t, r.Validate(info))
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeBackend{}, "https")

	_, err := r.NewClient(context.Background(), connection.NewAzureAuth("mysql://h/db", "db"))
	require.Error(t, err)
	assert.True(t, kerrors.Has(err, kerrors.UnknownBackend))

	var ub *UnknownBackendError
	require.ErrorAs(t, err, &ub)
	assert.Equal(t, "mysql", ub.Scheme)
	assert.Equal(t, []string{"https"}, ub.Available)
	assert.Contains(t, ub.Error(), "Hint:")
}

func TestRegistry_ConstructionError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeBackend{err: errors.New("refused")}, "https")
	_, err := r.NewClient(context.Background(), connection.NewAzureAuth("help", "Samples"))
	assert.True(t, kerrors.Has(err, kerrors.SessionConstructionError))
}

func TestDefault_AppInsightsNeedsKey(t *testing.T) {
	creds := credentials.New(keychain.NewWithKeyring(keyring.NewArrayKeyring(nil)))
	r := Default(creds, nil)
	assert.Equal(t, []string{"appinsights", "grpc", "grpcs", "https", "postgres", "postgresql"}, r.Schemes())

	info := connection.NewAppInsights("app-1", "web")
	_, err := r.NewClient(context.Background(), info)
	assert.True(t, kerrors.Has(err, kerrors.CredentialsMissing))

	require.NoError(t, creds.SaveAppInsights(credentials.AppInsightsSecrets{AppID: "app-1", AppKey: "k"}))
	c, err := r.NewClient(context.Background(), info)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
