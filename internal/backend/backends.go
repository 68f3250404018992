// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"

	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/credentials"
	"kqlnb/cli/internal/gateway"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/pgquery"
	"kqlnb/cli/internal/session"
)

// Kusto serves https clusters through the Kusto REST API.
type Kusto struct {
	Tokens  kusto.TokenSource
	Options []kusto.Option
}

func (k *Kusto) NewClient(_ context.Context, info connection.Info) (session.Client, error) {
	return kusto.NewClusterClient(info.Cluster, k.Tokens, k.Options...), nil
}

func (k *Kusto) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	c := kusto.NewClusterClient(info.Cluster, k.Tokens, k.Options...)
	defer c.Close()
	return c.FetchSchema(ctx)
}

// AppInsights serves Application Insights apps with API keys from the keychain.
type AppInsights struct {
	Credentials *credentials.Provider
	Endpoint    string
	Options     []kusto.Option
}

func (a *AppInsights) client(info connection.Info) (*kusto.AppInsightsClient, error) {
	s, err := a.Credentials.AppInsights(info.ID)
	if err != nil {
		return nil, err
	}
	return kusto.NewAppInsightsClient(a.Endpoint, info.ID, s.AppKey, info.DisplayName, a.Options...), nil
}

func (a *AppInsights) NewClient(_ context.Context, info connection.Info) (session.Client, error) {
	c, err := a.client(info)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *AppInsights) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	c, err := a.client(info)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.FetchSchema(ctx)
}

// Postgres serves postgres:// clusters. The password is the token stored
// for the cluster, if any.
type Postgres struct {
	Credentials *credentials.Provider
	Logger      *zap.Logger
}

func (p *Postgres) open(ctx context.Context, info connection.Info) (*pgquery.Client, error) {
	password, err := p.Credentials.OptionalToken(ctx, info.Cluster)
	if err != nil {
		return nil, err
	}
	return pgquery.Open(ctx, info.Cluster, password, p.Logger)
}

func (p *Postgres) NewClient(ctx context.Context, info connection.Info) (session.Client, error) {
	c, err := p.open(ctx, info)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Postgres) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	c, err := p.open(ctx, info)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.FetchSchema(ctx)
}

// Gateway serves grpc:// and grpcs:// clusters through a kqlnb gateway.
type Gateway struct {
	Credentials *credentials.Provider
}

func (g *Gateway) dial(ctx context.Context, info connection.Info) (*gateway.Client, error) {
	token, err := g.Credentials.OptionalToken(ctx, info.Cluster)
	if err != nil {
		return nil, err
	}
	return gateway.Dial(info.Cluster, token)
}

func (g *Gateway) NewClient(ctx context.Context, info connection.Info) (session.Client, error) {
	c, err := g.dial(ctx, info)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (g *Gateway) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	c, err := g.dial(ctx, info)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	s, err := c.FetchSchema(ctx)
	if err != nil {
		return nil, err
	}
	s.Cluster = info.Cluster
	return s, nil
}

// Default returns a registry with every built-in backend.
func Default(creds *credentials.Provider, log *zap.Logger, opts ...kusto.Option) *Registry {
	r := NewRegistry()
	r.Register(&Kusto{Tokens: creds, Options: opts}, "https")
	r.Register(&AppInsights{Credentials: creds, Options: opts}, SchemeAppInsights)
	r.Register(&Postgres{Credentials: creds, Logger: log}, "postgres", "postgresql")
	r.Register(&Gateway{Credentials: creds}, "grpc", "grpcs")
	return r
}
