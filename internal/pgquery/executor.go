// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pgquery runs notebook cells against PostgreSQL over a pgx
// connection pool. A Postgres schema plays the role of a Kusto database:
// Execute sets search_path to it, and FetchSchema reports one database per
// schema. Results are returned as kusto result sets with a single
// PrimaryResult table so the rest of the pipeline treats both backends alike.
package pgquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kqlnb/cli/internal/dsn"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/kusto"
)

const maxConns = 4

// Client executes queries using a connection pool.
type Client struct {
	pool    *pgxpool.Pool
	cluster string
	log     *zap.Logger
}

// Open creates a pool for the password-less cluster URI. The password, if
// any, is supplied separately so it never has to be stored in the URI.
func Open(ctx context.Context, cluster, password string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info, err := dsn.Parse(cluster)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.SessionConstructionError, "invalid postgres cluster", err)
	}
	if password != "" {
		info = info.WithPassword(password)
	}
	cfg, err := pgxpool.ParseConfig(info.String())
	if err != nil {
		return nil, kerrors.Wrap(kerrors.SessionConstructionError, "invalid postgres cluster", err)
	}
	cfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.SessionConstructionError, "connect postgres", err)
	}
	return &Client{pool: pool, cluster: cluster, log: log.Named("pgquery")}, nil
}

// Execute runs query with search_path set to database. An empty database
// resets search_path to the server default. Statements that return no rows
// produce a single RowsAffected column.
func (c *Client) Execute(ctx context.Context, database, query string) (*kusto.ResultSet, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	setPath := "RESET search_path"
	if database != "" {
		setPath = "SET search_path TO " + pgx.Identifier{database}.Sanitize()
	}
	if _, err := conn.Exec(ctx, setPath); err != nil {
		return nil, toQueryError(err)
	}

	start := time.Now()
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, toQueryError(err)
	}
	defer rows.Close()

	typeMap := conn.Conn().TypeMap()
	fds := rows.FieldDescriptions()
	table := kusto.Table{Name: kusto.PrimaryResultName, Kind: kusto.PrimaryResultName, Rows: [][]any{}}
	for _, fd := range fds {
		name := "unknown"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			name = t.Name
		}
		table.Columns = append(table.Columns, kusto.Column{Name: fd.Name, Type: KustoType(name)})
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, toQueryError(err)
		}
		for i := range vals {
			vals[i] = normalizeValue(vals[i])
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, toQueryError(err)
	}
	rows.Close()

	if len(fds) == 0 {
		table.Columns = []kusto.Column{{Name: "RowsAffected", Type: "long"}}
		table.Rows = [][]any{{rows.CommandTag().RowsAffected()}}
	}
	c.log.Debug("query executed",
		zap.String("database", database),
		zap.Int("rows", len(table.Rows)),
		zap.Duration("elapsed", time.Since(start)))

	return &kusto.ResultSet{
		Tables:         []kusto.Table{table},
		TableNames:     []string{table.Name},
		PrimaryResults: []kusto.Table{table},
	}, nil
}

// Close releases the pool.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// normalizeValue converts pgx values into JSON-friendly forms.
func normalizeValue(val any) any {
	switch v := val.(type) {
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		if len(v) == 16 {
			return uuid.UUID(v).String()
		}
		return fmt.Sprintf("\\x%x", v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// toQueryError maps server errors onto the structured query error shape.
func toQueryError(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return &kusto.QueryError{Code: pe.Code, Message: pe.Message, InnerMessage: pe.Detail}
	}
	return err
}

// KustoType maps a PostgreSQL type name onto the nearest Kusto scalar type.
func KustoType(pg string) string {
	switch pg {
	case "bool", "boolean":
		return "bool"
	case "int2", "int4", "smallint", "integer":
		return "int"
	case "int8", "bigint", "oid":
		return "long"
	case "float4", "float8", "real", "double precision":
		return "real"
	case "numeric", "decimal":
		return "decimal"
	case "date", "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return "datetime"
	case "interval":
		return "timespan"
	case "uuid":
		return "guid"
	case "json", "jsonb", "ARRAY":
		return "dynamic"
	default:
		return "string"
	}
}
