// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a Store backed by a single SQLite file.
// Workspace-scoped keys are partitioned by the workspace name given to Open.
type SQLite struct {
	db        *sql.DB
	workspace string
}

// OpenSQLite opens (creating if needed) the database at path and runs migrations.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path, workspace string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, workspace: workspace}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) partition(scope Scope) string {
	if scope == Workspace {
		return s.workspace
	}
	return ""
}

func (s *SQLite) Get(ctx context.Context, scope Scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND partition = ? AND key = ?`,
		string(scope), s.partition(scope), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, scope Scope, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (scope, partition, key, value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (scope, partition, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(scope), s.partition(scope), key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, scope Scope, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE scope = ? AND partition = ? AND key = ?`,
		string(scope), s.partition(scope), key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}
