// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kusto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DefaultAppInsightsEndpoint is the public Application Insights query API.
const DefaultAppInsightsEndpoint = "https://api.applicationinsights.io"

// AppInsightsClient queries one Application Insights app with an API key.
type AppInsightsClient struct {
	transport
	endpoint string
	appID    string
	appKey   string
	name     string
}

// NewAppInsightsClient creates a client for appID. An empty endpoint uses
// DefaultAppInsightsEndpoint. name labels the single database the app exposes.
func NewAppInsightsClient(endpoint, appID, appKey, name string, opts ...Option) *AppInsightsClient {
	if endpoint == "" {
		endpoint = DefaultAppInsightsEndpoint
	}
	if name == "" {
		name = appID
	}
	return &AppInsightsClient{
		transport: newTransport(opts),
		endpoint:  strings.TrimRight(endpoint, "/"),
		appID:     appID,
		appKey:    appKey,
		name:      name,
	}
}

func (c *AppInsightsClient) url(path string) string {
	return fmt.Sprintf("%s/v1/apps/%s/%s", c.endpoint, url.PathEscape(c.appID), path)
}

func (c *AppInsightsClient) header() http.Header {
	h := http.Header{}
	h.Set("x-api-key", c.appKey)
	return h
}

type appInsightsTables struct {
	Tables []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	} `json:"tables"`
}

// Execute runs query against the app. The database argument is ignored.
func (c *AppInsightsClient) Execute(ctx context.Context, _ string, query string) (*ResultSet, error) {
	data, err := c.do(ctx, http.MethodPost, c.url("query"), map[string]string{"query": query}, c.header())
	if err != nil {
		return nil, err
	}
	var resp appInsightsTables
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode app insights response: %w", err)
	}
	rs := &ResultSet{}
	for _, rt := range resp.Tables {
		t := Table{Name: rt.Name, Rows: rt.Rows}
		for _, col := range rt.Columns {
			t.Columns = append(t.Columns, Column{Name: col.Name, Type: col.Type})
		}
		rs.Tables = append(rs.Tables, t)
		rs.TableNames = append(rs.TableNames, t.Name)
	}
	return rs, nil
}

type appInsightsMetadata struct {
	Tables []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
	} `json:"tables"`
	Functions []struct {
		Name        string `json:"name"`
		Body        string `json:"body"`
		Parameters  string `json:"parameters"`
		Description string `json:"description"`
	} `json:"functions"`
}

// FetchSchema returns the app's tables and functions as a single database.
func (c *AppInsightsClient) FetchSchema(ctx context.Context) (*EngineSchema, error) {
	data, err := c.do(ctx, http.MethodGet, c.url("metadata"), nil, c.header())
	if err != nil {
		return nil, err
	}
	var meta appInsightsMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode app insights metadata: %w", err)
	}
	db := DatabaseSchema{Name: c.name, Tables: []TableSchema{}, Functions: []FunctionSchema{}}
	for _, t := range meta.Tables {
		ts := TableSchema{Name: t.Name, EntityType: EntityTable}
		for _, col := range t.Columns {
			ts.Columns = append(ts.Columns, ColumnSchema{Name: col.Name, Type: col.Type})
		}
		db.Tables = append(db.Tables, ts)
	}
	for _, f := range meta.Functions {
		db.Functions = append(db.Functions, FunctionSchema{
			Name:            f.Name,
			Body:            f.Body,
			DocString:       f.Description,
			InputParameters: ParseParameters(f.Parameters),
		})
	}
	sort.Slice(db.Tables, func(i, j int) bool { return db.Tables[i].Name < db.Tables[j].Name })
	sort.Slice(db.Functions, func(i, j int) bool { return db.Functions[i].Name < db.Functions[j].Name })
	return &EngineSchema{Cluster: c.endpoint + "/" + c.appID, Databases: []DatabaseSchema{db}}, nil
}

// Close releases idle connections.
func (c *AppInsightsClient) Close() error {
	c.close()
	return nil
}

// ParseParameters parses a scalar parameter list such as
// "(start:datetime, name:string = 'x')". Tabular parameters are kept by name
// with type "table".
func ParseParameters(s string) []ParameterSchema {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []ParameterSchema
	depth, start := 0, 0
	flush := func(part string) {
		part = strings.TrimSpace(part)
		if part == "" {
			return
		}
		p := ParameterSchema{}
		if eq := strings.Index(part, "="); eq >= 0 {
			p.DefaultValue = strings.TrimSpace(part[eq+1:])
			part = part[:eq]
		}
		name, typ, _ := strings.Cut(part, ":")
		p.Name = strings.TrimSpace(name)
		p.Type = strings.TrimSpace(typ)
		if strings.HasPrefix(p.Type, "(") {
			p.Type = "table"
		}
		out = append(out, p)
	}
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(s[start:i])
				start = i + 1
			}
		}
	}
	flush(s[start:])
	return out
}
