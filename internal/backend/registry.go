// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend picks the query service for a connection. The cluster URI
// scheme selects the backend: Kusto REST for https, pgx for postgres, the
// gateway for grpc. App Insights connections have no cluster and always use
// the App Insights backend.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"kqlnb/cli/internal/connection"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/session"
)

// SchemeAppInsights is the registry name for App Insights connections.
const SchemeAppInsights = "appinsights"

// Backend builds clients and fetches schemas for one kind of cluster.
type Backend interface {
	NewClient(ctx context.Context, info connection.Info) (session.Client, error)
	FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error)
}

// Registry maps URI schemes to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register binds b to each scheme.
func (r *Registry) Register(b Backend, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.backends[strings.ToLower(s)] = b
	}
}

// Schemes returns the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Scheme returns the registry name used for info.
func Scheme(info connection.Info) string {
	if info.Kind == connection.KindAppInsights {
		return SchemeAppInsights
	}
	u, err := url.Parse(info.Cluster)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// For returns the backend for info.
func (r *Registry) For(info connection.Info) (Backend, error) {
	scheme := Scheme(info)
	r.mu.RLock()
	b, ok := r.backends[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, kerrors.Wrap(kerrors.UnknownBackend, "no backend for "+info.DisplayName,
			&UnknownBackendError{Scheme: scheme, Available: r.Schemes()})
	}
	return b, nil
}

// NewClient implements session.ClientFactory.
func (r *Registry) NewClient(ctx context.Context, info connection.Info) (session.Client, error) {
	b, err := r.For(info)
	if err != nil {
		return nil, err
	}
	c, err := b.NewClient(ctx, info)
	if err != nil {
		if kerrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, kerrors.Wrap(kerrors.SessionConstructionError, "create client for "+info.DisplayName, err)
	}
	return c, nil
}

// FetchSchema implements schema.Fetcher.
func (r *Registry) FetchSchema(ctx context.Context, info connection.Info) (*kusto.EngineSchema, error) {
	b, err := r.For(info)
	if err != nil {
		return nil, err
	}
	return b.FetchSchema(ctx, info)
}

// Validate checks that info can be served without contacting the backend.
func (r *Registry) Validate(info connection.Info) error {
	_, err := r.For(info)
	return err
}

// UnknownBackendError is returned when no backend serves a cluster scheme.
type UnknownBackendError struct {
	Scheme    string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown cluster scheme %q\nAvailable schemes: %v\n%s", e.Scheme, e.Available, e.Hint())
}

// Hint suggests a fix for the unknown scheme.
func (e *UnknownBackendError) Hint() string {
	return "Hint: use https://<cluster>.kusto.windows.net, postgres://user@host/db or grpc://host:port"
}
