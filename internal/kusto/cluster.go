// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kusto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// TokenSource yields bearer tokens for a cluster.
type TokenSource interface {
	Token(ctx context.Context, cluster string) (string, error)
}

// ClusterClient talks to the Azure Data Explorer REST API of one cluster.
type ClusterClient struct {
	transport
	cluster string
	tokens  TokenSource
}

// NewClusterClient creates a client for cluster (for example
// https://help.kusto.windows.net).
func NewClusterClient(cluster string, tokens TokenSource, opts ...Option) *ClusterClient {
	return &ClusterClient{
		transport: newTransport(opts),
		cluster:   strings.TrimRight(cluster, "/"),
		tokens:    tokens,
	}
}

type restRequest struct {
	DB         string         `json:"db"`
	CSL        string         `json:"csl"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (c *ClusterClient) post(ctx context.Context, path string, body restRequest) ([]byte, error) {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx, c.cluster)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}
	return c.do(ctx, http.MethodPost, c.cluster+path, body, header)
}

// Execute runs a query through the v2 query endpoint.
func (c *ClusterClient) Execute(ctx context.Context, database, query string) (*ResultSet, error) {
	data, err := c.post(ctx, "/v2/rest/query", restRequest{
		DB:  database,
		CSL: query,
		Properties: map[string]any{
			"Options": map[string]any{"results_progressive_enabled": false},
		},
	})
	if err != nil {
		return nil, err
	}
	return ParseV2(data)
}

// FetchSchema returns the schema of every database on the cluster.
func (c *ClusterClient) FetchSchema(ctx context.Context) (*EngineSchema, error) {
	data, err := c.post(ctx, "/v1/rest/mgmt", restRequest{CSL: ".show databases schema as json"})
	if err != nil {
		return nil, err
	}
	tables, err := parseV1(data)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 || len(tables[0].Rows) == 0 || len(tables[0].Rows[0]) == 0 {
		return nil, fmt.Errorf("empty schema response from %s", c.cluster)
	}
	raw, ok := tables[0].Rows[0][0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected schema payload from %s", c.cluster)
	}
	return ParseSchemaJSON(c.cluster, []byte(raw))
}

// Close releases idle connections.
func (c *ClusterClient) Close() error {
	c.close()
	return nil
}

type v2Frame struct {
	FrameType    string            `json:"FrameType"`
	TableKind    string            `json:"TableKind"`
	TableName    string            `json:"TableName"`
	Columns      []v2Column        `json:"Columns"`
	Rows         []json.RawMessage `json:"Rows"`
	HasErrors    bool              `json:"HasErrors"`
	OneAPIErrors []oneAPIError     `json:"OneApiErrors"`
}

type v2Column struct {
	ColumnName string `json:"ColumnName"`
	ColumnType string `json:"ColumnType"`
}

// ParseV2 decodes a v2 REST response (a JSON array of frames).
// Tables of kind PrimaryResult are also returned as PrimaryResults.
func ParseV2(data []byte) (*ResultSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var frames []v2Frame
	if err := dec.Decode(&frames); err != nil {
		return nil, fmt.Errorf("decode v2 response: %w", err)
	}

	rs := &ResultSet{}
	for _, f := range frames {
		switch f.FrameType {
		case "DataTable":
			t := Table{Name: f.TableName, Kind: f.TableKind, Columns: make([]Column, 0, len(f.Columns)), Rows: make([][]any, 0, len(f.Rows))}
			for _, c := range f.Columns {
				t.Columns = append(t.Columns, Column{Name: c.ColumnName, Type: c.ColumnType})
			}
			for _, raw := range f.Rows {
				row, err := decodeRow(raw)
				if err != nil {
					return nil, err
				}
				t.Rows = append(t.Rows, row)
			}
			rs.Tables = append(rs.Tables, t)
			rs.TableNames = append(rs.TableNames, t.Name)
			if t.Kind == PrimaryResultName {
				rs.PrimaryResults = append(rs.PrimaryResults, t)
			}
		case "DataSetCompletion":
			if f.HasErrors && len(f.OneAPIErrors) > 0 {
				return nil, f.OneAPIErrors[0].queryError(http.StatusOK)
			}
		}
	}
	return rs, nil
}

// decodeRow decodes a row array. Partial failures arrive as an object in
// place of a row and are reported as a QueryError.
func decodeRow(raw json.RawMessage) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var partial struct {
			OneAPIErrors []oneAPIError `json:"OneApiErrors"`
		}
		if err := dec.Decode(&partial); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		if len(partial.OneAPIErrors) > 0 {
			return nil, partial.OneAPIErrors[0].queryError(http.StatusOK)
		}
		return nil, fmt.Errorf("unexpected row object")
	}
	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

type v1Response struct {
	Tables []struct {
		TableName string `json:"TableName"`
		Columns   []struct {
			ColumnName string `json:"ColumnName"`
			DataType   string `json:"DataType"`
			ColumnType string `json:"ColumnType"`
		} `json:"Columns"`
		Rows [][]any `json:"Rows"`
	} `json:"Tables"`
}

func parseV1(data []byte) ([]Table, error) {
	var resp v1Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode v1 response: %w", err)
	}
	tables := make([]Table, 0, len(resp.Tables))
	for _, rt := range resp.Tables {
		t := Table{Name: rt.TableName, Rows: rt.Rows}
		for _, c := range rt.Columns {
			typ := c.ColumnType
			if typ == "" {
				typ = c.DataType
			}
			t.Columns = append(t.Columns, Column{Name: c.ColumnName, Type: typ})
		}
		tables = append(tables, t)
	}
	return tables, nil
}

type showSchema struct {
	Databases map[string]showDatabase `json:"Databases"`
}

type showDatabase struct {
	Name              string                  `json:"Name"`
	Tables            map[string]showTable    `json:"Tables"`
	ExternalTables    map[string]showTable    `json:"ExternalTables"`
	MaterializedViews map[string]showTable    `json:"MaterializedViews"`
	Functions         map[string]showFunction `json:"Functions"`
}

type showColumn struct {
	Name      string `json:"Name"`
	Type      string `json:"Type"`
	CslType   string `json:"CslType"`
	DocString string `json:"DocString"`
}

type showTable struct {
	Name           string       `json:"Name"`
	Folder         string       `json:"Folder"`
	DocString      string       `json:"DocString"`
	OrderedColumns []showColumn `json:"OrderedColumns"`
}

type showFunction struct {
	Name            string `json:"Name"`
	Body            string `json:"Body"`
	Folder          string `json:"Folder"`
	DocString       string `json:"DocString"`
	InputParameters []struct {
		Name            string       `json:"Name"`
		Type            string       `json:"Type"`
		CslType         string       `json:"CslType"`
		CslDefaultValue string       `json:"CslDefaultValue"`
		Columns         []showColumn `json:"Columns"`
	} `json:"InputParameters"`
}

func (c showColumn) schema() ColumnSchema {
	typ := c.CslType
	if typ == "" {
		typ = c.Type
	}
	return ColumnSchema{Name: c.Name, Type: typ, DocString: c.DocString}
}

// ParseSchemaJSON converts `.show databases schema as json` output into an
// EngineSchema. Databases, tables and functions are ordered by name; columns
// and parameters keep server order.
func ParseSchemaJSON(cluster string, data []byte) (*EngineSchema, error) {
	var raw showSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	out := &EngineSchema{Cluster: cluster, Databases: make([]DatabaseSchema, 0, len(raw.Databases))}
	for key, db := range raw.Databases {
		name := db.Name
		if name == "" {
			name = key
		}
		d := DatabaseSchema{Name: name, Tables: []TableSchema{}, Functions: []FunctionSchema{}}
		for entity, group := range map[string]map[string]showTable{
			EntityTable:            db.Tables,
			EntityExternalTable:    db.ExternalTables,
			EntityMaterializedView: db.MaterializedViews,
		} {
			for _, t := range group {
				ts := TableSchema{Name: t.Name, EntityType: entity, Folder: t.Folder, DocString: t.DocString, Columns: make([]ColumnSchema, 0, len(t.OrderedColumns))}
				for _, c := range t.OrderedColumns {
					ts.Columns = append(ts.Columns, c.schema())
				}
				d.Tables = append(d.Tables, ts)
			}
		}
		for _, f := range db.Functions {
			fs := FunctionSchema{Name: f.Name, Body: f.Body, Folder: f.Folder, DocString: f.DocString, InputParameters: make([]ParameterSchema, 0, len(f.InputParameters))}
			for _, p := range f.InputParameters {
				typ := p.CslType
				if typ == "" {
					typ = p.Type
				}
				ps := ParameterSchema{Name: p.Name, Type: typ, DefaultValue: p.CslDefaultValue}
				for _, c := range p.Columns {
					ps.Columns = append(ps.Columns, c.schema())
				}
				fs.InputParameters = append(fs.InputParameters, ps)
			}
			d.Functions = append(d.Functions, fs)
		}
		sort.Slice(d.Tables, func(i, j int) bool {
			if d.Tables[i].Name != d.Tables[j].Name {
				return d.Tables[i].Name < d.Tables[j].Name
			}
			return d.Tables[i].EntityType < d.Tables[j].EntityType
		})
		sort.Slice(d.Functions, func(i, j int) bool { return d.Functions[i].Name < d.Functions[j].Name })
		out.Databases = append(out.Databases, d)
	}
	sort.Slice(out.Databases, func(i, j int) bool { return out.Databases[i].Name < out.Databases[j].Name })
	return out, nil
}
