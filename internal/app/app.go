// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package app wires the components of kqlnb into one object the commands
// share for the lifetime of a process.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"go.uber.org/zap"

	"kqlnb/cli/internal/backend"
	"kqlnb/cli/internal/config"
	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/credentials"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/kernel"
	"kqlnb/cli/internal/keychain"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/resolver"
	"kqlnb/cli/internal/schema"
	"kqlnb/cli/internal/session"
	"kqlnb/cli/internal/store"
	"kqlnb/cli/internal/variables"
)

// Options overrides the defaults New would otherwise build from Config.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	Prompt resolver.CapturePrompt

	// Store defaults to the SQLite database at Config.Store.Path.
	Store store.Store
	// Secrets defaults to the OS keychain, or an in-memory ring when the
	// keychain cannot be opened.
	Secrets credentials.Secrets
}

// App holds the shared components.
type App struct {
	Config config.Config
	Log    *zap.Logger

	Store       store.Store
	Connections *connection.Storage
	Recent      *connection.Recent
	Documents   *document.Tracker
	Credentials *credentials.Provider
	Backends    *backend.Registry
	Resolver    *resolver.Resolver
	Sessions    *session.Cache
	Schemas     *schema.Cache
	Explorer    *schema.Explorer
	Kernels     *kernel.Registry
	Variables   *variables.Provider

	closers []func() error
}

// New builds an App. Close releases everything it opened.
func New(opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: opts.Config, Log: log}

	a.Store = opts.Store
	if a.Store == nil {
		if err := ensureDir(opts.Config.Store.Path); err != nil {
			return nil, err
		}
		s, err := store.OpenSQLite(opts.Config.Store.Path, opts.Config.Workspace)
		if err != nil {
			return nil, err
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)
	}

	secrets := opts.Secrets
	if secrets == nil {
		m, err := keychain.GetManager()
		if err != nil {
			log.Warn("keychain unavailable, secrets will not persist", zap.Error(err))
			m = keychain.NewWithKeyring(keyring.NewArrayKeyring(nil))
		}
		secrets = m
	}
	a.Credentials = credentials.New(secrets)

	var kopts []kusto.Option
	kopts = append(kopts, kusto.WithLogger(log))
	if opts.Config.HTTP.Timeout > 0 {
		kopts = append(kopts, kusto.WithTimeout(opts.Config.HTTP.Timeout))
	}
	a.Backends = backend.Default(a.Credentials, log, kopts...)

	a.Connections = connection.NewStorage(a.Store, log)
	a.Recent = connection.NewRecent(a.Store, log)
	a.Documents = document.NewTracker()
	a.Resolver = resolver.New(resolver.Options{Store: a.Store, Prompt: opts.Prompt, Logger: log})
	a.closers = append(a.closers, func() error { a.Resolver.Close(); return nil })

	a.Sessions = session.NewCache(a.Resolver, a.Backends, log)
	a.unsubscribe(a.Sessions.Watch(a.Documents.Closed, a.Resolver.Changed))
	a.unsubscribe(a.Documents.Closed.Subscribe(a.Resolver.Forget))

	a.Schemas = schema.NewCache(a.Backends, a.Store, log)
	a.Explorer = schema.NewExplorer(a.Schemas, log)
	a.unsubscribe(a.Explorer.Watch(a.Connections))

	a.Kernels = kernel.NewRegistry(kernel.Options{
		Resolver: a.Resolver,
		Sessions: a.Sessions,
		Recent:   a.Recent,
		Logger:   log,
	})
	a.unsubscribe(a.Kernels.Watch(a.Connections))
	if err := a.Kernels.RegisterRecent(context.Background()); err != nil {
		log.Warn("failed to register executors for recent connections", zap.Error(err))
	}
	a.closers = append(a.closers, func() error { a.Kernels.Dispose(); return nil })

	a.Variables = variables.NewProvider(a.Schemas, a.Resolver.Changed)
	a.closers = append(a.closers, func() error { a.Variables.Close(); return nil })

	a.closers = append(a.closers, func() error { a.Sessions.Clear(); return nil })
	return a, nil
}

func (a *App) unsubscribe(fn func()) {
	a.closers = append(a.closers, func() error { fn(); return nil })
}

// Open loads and tracks the document at path. kind may be empty to infer it
// from the extension.
func (a *App) Open(path string, kind document.Kind) (*document.Document, error) {
	d, err := document.Load(path, kind)
	if err != nil {
		return nil, err
	}
	return a.Documents.Open(d), nil
}

// CloseDocument stops tracking d, which drops its session.
func (a *App) CloseDocument(d *document.Document) {
	a.Documents.Close(d)
}

// LoadConnections loads the schema of every saved connection into the
// explorer. Failures are kept on the tree nodes.
func (a *App) LoadConnections(ctx context.Context) ([]connection.Info, error) {
	infos, err := a.Connections.List(ctx)
	if err != nil {
		return nil, err
	}
	a.Explorer.Load(ctx, infos)
	return infos, nil
}

// Close releases every component in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Log.Sync()
	return errors.Join(errs...)
}

var _ io.Closer = (*App)(nil)

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o700)
}
