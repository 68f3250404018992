// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package kusto holds the wire-level model shared by every query backend
// (result sets, engine schema, structured query errors) and the REST clients
// for Azure Data Explorer clusters and Application Insights apps.
package kusto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PrimaryResultName is the conventional name of the main result table.
const PrimaryResultName = "PrimaryResult"

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one result table.
type Table struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind,omitempty"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ResultSet is the full response to one query.
type ResultSet struct {
	Tables         []Table  `json:"tables"`
	TableNames     []string `json:"tableNames"`
	PrimaryResults []Table  `json:"primaryResults"`
}

// TableNamed returns the tables called name.
func (r *ResultSet) TableNamed(name string) []Table {
	var out []Table
	for _, t := range r.Tables {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

// Visualization returns the render kind requested by the query (for example
// "timechart" from `| render timechart`), or "" when none was requested.
// It reads the QueryProperties table the service returns alongside results.
func (r *ResultSet) Visualization() string {
	for _, t := range r.Tables {
		if t.Kind != "QueryProperties" && t.Name != "@ExtendedProperties" {
			continue
		}
		valueCol := len(t.Columns) - 1
		for i, c := range t.Columns {
			if c.Name == "Value" {
				valueCol = i
			}
		}
		if valueCol < 0 {
			continue
		}
		for _, row := range t.Rows {
			if valueCol >= len(row) {
				continue
			}
			s, ok := row[valueCol].(string)
			if !ok {
				continue
			}
			var props struct {
				Visualization string `json:"Visualization"`
			}
			if json.Unmarshal([]byte(s), &props) == nil && props.Visualization != "" {
				return props.Visualization
			}
		}
	}
	return ""
}

// QueryError is a structured failure reported by the remote service.
type QueryError struct {
	StatusCode   int
	Code         string
	Message      string
	InnerMessage string
}

func (e *QueryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("query failed with status %d", e.StatusCode)
	}
	return e.Message
}

// oneAPIError is the error envelope used by Kusto and Application Insights.
type oneAPIError struct {
	Error struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		DetailMessage string `json:"@message"`
		InnerError    *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"innererror"`
	} `json:"error"`
}

func (e oneAPIError) queryError(status int) *QueryError {
	qe := &QueryError{StatusCode: status, Code: e.Error.Code, Message: e.Error.Message}
	if e.Error.DetailMessage != "" && e.Error.DetailMessage != qe.Message {
		qe.InnerMessage = e.Error.DetailMessage
	}
	if e.Error.InnerError != nil && e.Error.InnerError.Message != "" {
		qe.InnerMessage = e.Error.InnerError.Message
	}
	return qe
}

// parseError turns an error response body into a QueryError.
func parseError(status int, body []byte) *QueryError {
	var env oneAPIError
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.queryError(status)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &QueryError{StatusCode: status, Message: msg}
}
