// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pgquery

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kqlnb/cli/internal/kusto"
)

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	assert.Equal(t, "12345678-9abc-def0-0102-030405060708", normalizeValue(id))
	assert.Equal(t, "12345678-9abc-def0-0102-030405060708", normalizeValue(id[:]))
	assert.Equal(t, `\x0102`, normalizeValue([]byte{1, 2}))
	assert.Equal(t, "2024-05-01T10:00:00Z", normalizeValue(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
	assert.Nil(t, normalizeValue(nil))
}

func TestToQueryError(t *testing.T) {
	err := toQueryError(&pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`, Detail: "detail"})
	var qe *kusto.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "42P01", qe.Code)
	assert.Equal(t, `relation "nope" does not exist`, qe.Message)
	assert.Equal(t, "detail", qe.InnerMessage)

	plain := assert.AnError
	assert.Same(t, plain, toQueryError(plain))
}

func TestKustoType(t *testing.T) {
	cases := map[string]string{
		"int4":                     "int",
		"bigint":                   "long",
		"double precision":         "real",
		"timestamp with time zone": "datetime",
		"uuid":                     "guid",
		"jsonb":                    "dynamic",
		"character varying":        "string",
	}
	for pg, want := range cases {
		assert.Equal(t, want, KustoType(pg), pg)
	}
}

func TestAssembleSchema(t *testing.T) {
	tables := []tableRow{
		{Schema: "public", Name: "users", Type: "BASE TABLE"},
		{Schema: "public", Name: "active_users", Type: "VIEW"},
		{Schema: "audit", Name: "events", Type: "FOREIGN"},
	}
	columns := []columnRow{
		{Schema: "public", Table: "users", Name: "id", Type: "uuid"},
		{Schema: "public", Table: "users", Name: "created", Type: "timestamp with time zone"},
	}
	routines := []routineRow{{Schema: "public", Name: "touch", Body: "  BEGIN END  "}}

	got := assembleSchema("postgresql://u@h:5432/app", tables, columns, routines)
	require.Len(t, got.Databases, 2)
	assert.Equal(t, "audit", got.Databases[0].Name)
	assert.Equal(t, kusto.EntityExternalTable, got.Databases[0].Tables[0].EntityType)
	assert.Empty(t, got.Databases[0].Tables[0].Columns)

	public := got.Databases[1]
	require.Len(t, public.Tables, 2)
	assert.Equal(t, "active_users", public.Tables[0].Name)
	assert.Equal(t, kusto.EntityMaterializedView, public.Tables[0].EntityType)
	assert.Equal(t, "users", public.Tables[1].Name)
	assert.Equal(t, []kusto.ColumnSchema{{Name: "id", Type: "guid"}, {Name: "created", Type: "datetime"}}, public.Tables[1].Columns)
	require.Len(t, public.Functions, 1)
	assert.Equal(t, "BEGIN END", public.Functions[0].Body)
}
