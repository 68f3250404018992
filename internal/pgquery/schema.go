// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pgquery

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"kqlnb/cli/internal/kusto"
)

const tablesQuery = `
	SELECT table_schema, table_name, table_type
	FROM information_schema.tables
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`

const columnsQuery = `
	SELECT table_schema, table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
	ORDER BY table_schema, table_name, ordinal_position`

const routinesQuery = `
	SELECT routine_schema, routine_name, COALESCE(routine_definition, '')
	FROM information_schema.routines
	WHERE routine_schema NOT IN ('pg_catalog', 'information_schema')
	  AND routine_type = 'FUNCTION'`

type tableRow struct {
	Schema, Name, Type string
}

type columnRow struct {
	Schema, Table, Name, Type string
}

type routineRow struct {
	Schema, Name, Body string
}

// FetchSchema reads information_schema and reports each Postgres schema as
// a database.
func (c *Client) FetchSchema(ctx context.Context) (*kusto.EngineSchema, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var (
		tables   []tableRow
		columns  []columnRow
		routines []routineRow
	)
	if err := collect(ctx, conn.Query, tablesQuery, func(scan func(...any) error) error {
		var r tableRow
		if err := scan(&r.Schema, &r.Name, &r.Type); err != nil {
			return err
		}
		tables = append(tables, r)
		return nil
	}); err != nil {
		return nil, toQueryError(err)
	}
	if err := collect(ctx, conn.Query, columnsQuery, func(scan func(...any) error) error {
		var r columnRow
		if err := scan(&r.Schema, &r.Table, &r.Name, &r.Type); err != nil {
			return err
		}
		columns = append(columns, r)
		return nil
	}); err != nil {
		return nil, toQueryError(err)
	}
	if err := collect(ctx, conn.Query, routinesQuery, func(scan func(...any) error) error {
		var r routineRow
		if err := scan(&r.Schema, &r.Name, &r.Body); err != nil {
			return err
		}
		routines = append(routines, r)
		return nil
	}); err != nil {
		// Routine visibility depends on privileges; tables alone are still useful.
		c.log.Debug("skipping routines", zap.Error(err))
		routines = nil
	}
	return assembleSchema(c.cluster, tables, columns, routines), nil
}

func assembleSchema(cluster string, tables []tableRow, columns []columnRow, routines []routineRow) *kusto.EngineSchema {
	dbs := make(map[string]*kusto.DatabaseSchema)
	db := func(name string) *kusto.DatabaseSchema {
		d, ok := dbs[name]
		if !ok {
			d = &kusto.DatabaseSchema{Name: name, Tables: []kusto.TableSchema{}, Functions: []kusto.FunctionSchema{}}
			dbs[name] = d
		}
		return d
	}

	cols := make(map[string][]kusto.ColumnSchema)
	for _, c := range columns {
		key := c.Schema + "." + c.Table
		cols[key] = append(cols[key], kusto.ColumnSchema{Name: c.Name, Type: KustoType(c.Type)})
	}
	for _, t := range tables {
		tc := cols[t.Schema+"."+t.Name]
		if tc == nil {
			tc = []kusto.ColumnSchema{}
		}
		d := db(t.Schema)
		d.Tables = append(d.Tables, kusto.TableSchema{
			Name:       t.Name,
			EntityType: entityType(t.Type),
			Columns:    tc,
		})
	}
	for _, r := range routines {
		d := db(r.Schema)
		d.Functions = append(d.Functions, kusto.FunctionSchema{
			Name:            r.Name,
			Body:            strings.TrimSpace(r.Body),
			InputParameters: []kusto.ParameterSchema{},
		})
	}

	out := &kusto.EngineSchema{Cluster: cluster, Databases: []kusto.DatabaseSchema{}}
	for _, d := range dbs {
		sort.Slice(d.Tables, func(i, j int) bool { return d.Tables[i].Name < d.Tables[j].Name })
		sort.Slice(d.Functions, func(i, j int) bool { return d.Functions[i].Name < d.Functions[j].Name })
		out.Databases = append(out.Databases, *d)
	}
	sort.Slice(out.Databases, func(i, j int) bool { return out.Databases[i].Name < out.Databases[j].Name })
	return out
}

func entityType(tableType string) string {
	switch tableType {
	case "FOREIGN":
		return kusto.EntityExternalTable
	case "VIEW":
		return kusto.EntityMaterializedView
	default:
		return kusto.EntityTable
	}
}

type queryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

// collect runs sql and hands each row's Scan to each.
func collect(ctx context.Context, query queryFunc, sql string, each func(scan func(...any) error) error) error {
	rows, err := query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}
