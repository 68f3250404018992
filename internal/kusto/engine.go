// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kusto

import "strings"

// Entity types of a TableSchema.
const (
	EntityTable            = "Table"
	EntityExternalTable    = "ExternalTable"
	EntityMaterializedView = "MaterializedView"
)

// EngineSchema is a point-in-time copy of a cluster's schema.
type EngineSchema struct {
	Cluster   string           `json:"cluster"`
	Databases []DatabaseSchema `json:"databases"`
}

// DatabaseSchema is one database of an EngineSchema.
type DatabaseSchema struct {
	Name      string           `json:"name"`
	Tables    []TableSchema    `json:"tables"`
	Functions []FunctionSchema `json:"functions"`
}

// TableSchema describes a table, external table or materialized view.
type TableSchema struct {
	Name       string         `json:"name"`
	EntityType string         `json:"entityType"`
	Folder     string         `json:"folder,omitempty"`
	DocString  string         `json:"docstring,omitempty"`
	Columns    []ColumnSchema `json:"columns"`
}

// ColumnSchema is one column, in server-declared order.
type ColumnSchema struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	DocString string `json:"docstring,omitempty"`
}

// FunctionSchema is a stored function.
type FunctionSchema struct {
	Name            string            `json:"name"`
	Body            string            `json:"body"`
	Folder          string            `json:"folder,omitempty"`
	DocString       string            `json:"docstring,omitempty"`
	InputParameters []ParameterSchema `json:"inputParameters"`
}

// ParameterSchema is a function parameter. Tabular parameters carry Columns.
type ParameterSchema struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	DefaultValue string         `json:"defaultValue,omitempty"`
	Columns      []ColumnSchema `json:"columns,omitempty"`
}

// Database returns the database called name (case-insensitive).
func (s *EngineSchema) Database(name string) (*DatabaseSchema, bool) {
	for i := range s.Databases {
		if strings.EqualFold(s.Databases[i].Name, name) {
			return &s.Databases[i], true
		}
	}
	return nil, false
}
