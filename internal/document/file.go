// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotSavable is returned when saving a document whose format keeps no outputs.
var ErrNotSavable = errors.New("document format does not store outputs")

// knbFile is the on-disk shape of a Kusto notebook.
type knbFile struct {
	Cells    []Cell         `json:"cells"`
	Metadata map[string]any `json:"metadata"`
}

type ipynbFile struct {
	Cells []struct {
		CellType string          `json:"cell_type"`
		Source   json.RawMessage `json:"source"`
		Metadata map[string]any  `json:"metadata"`
	} `json:"cells"`
	Metadata map[string]any `json:"metadata"`
}

// KindForPath infers the document kind from a file extension.
func KindForPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".knb":
		return KindKustoNotebook, nil
	case ".ipynb":
		return KindJupyter, nil
	case ".kql", ".csl":
		return KindText, nil
	default:
		return "", fmt.Errorf("unsupported document type %q (expected .knb, .ipynb, .kql or .csl)", filepath.Ext(path))
	}
}

// Load reads a document from disk. When kind is empty it is inferred from
// the file extension; passing KindKustoNotebookKQL opens a .kql file as a
// notebook whose cells are its query blocks.
func Load(path string, kind Kind) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		if kind, err = KindForPath(path); err != nil {
			return nil, err
		}
	}
	uri := fileURI(path)
	return Parse(uri, kind, data)
}

// Parse decodes document content of the given kind.
func Parse(uri string, kind Kind, data []byte) (*Document, error) {
	switch kind {
	case KindKustoNotebook:
		var f knbFile
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("parse notebook %s: %w", uri, err)
			}
		}
		return New(uri, kind, f.Cells, f.Metadata), nil
	case KindJupyter:
		return parseIpynb(uri, data)
	case KindText, KindKustoNotebookKQL, KindInteractive:
		queries := SplitQueries(string(data))
		cells := make([]Cell, 0, len(queries))
		for _, q := range queries {
			cells = append(cells, Cell{Kind: CellCode, Source: q})
		}
		return New(uri, kind, cells, nil), nil
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
}

func parseIpynb(uri string, data []byte) (*Document, error) {
	var f ipynbFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse jupyter notebook %s: %w", uri, err)
	}
	cells := make([]Cell, 0, len(f.Cells))
	for _, c := range f.Cells {
		kind := CellMarkdown
		if c.CellType == "code" {
			kind = CellCode
		}
		source, err := jupyterSource(c.Source)
		if err != nil {
			return nil, fmt.Errorf("parse jupyter notebook %s: %w", uri, err)
		}
		cells = append(cells, Cell{Kind: kind, Source: source, Metadata: c.Metadata})
	}
	return New(uri, KindJupyter, cells, f.Metadata), nil
}

// jupyterSource accepts both the string and the list-of-lines forms.
func jupyterSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, ""), nil
}

// Marshal encodes a Kusto notebook, including cell outputs.
func Marshal(d *Document) ([]byte, error) {
	if d.Kind != KindKustoNotebook {
		return nil, ErrNotSavable
	}
	f := knbFile{Cells: d.Cells(), Metadata: d.Metadata()}
	return json.MarshalIndent(f, "", "  ")
}

// Save writes a Kusto notebook back to path.
func Save(d *Document, path string) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SplitQueries splits .kql text into query blocks separated by blank lines.
// Blocks holding only // comments are dropped; comments above a query are
// kept with it.
func SplitQueries(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out   []string
		block []string
	)
	flush := func() {
		if hasQuery(block) {
			out = append(out, strings.Join(block, "\n"))
		}
		block = block[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return out
}

func hasQuery(lines []string) bool {
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), "//") {
			return true
		}
	}
	return false
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
