// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kqlnb/cli/internal/document"
	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/kusto"
)

// State is the lifecycle of one cell run.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Record is the timestamped execution record of one cell run.
type Record struct {
	ID      string
	Cell    int
	State   State
	Start   time.Time
	End     time.Time
	Success bool
}

// Duration returns End-Start, or zero while the run is open.
func (r Record) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Hint tells the renderer how to present a result.
type Hint string

const (
	HintTable     Hint = "table"
	HintVisualize Hint = "visualize"
)

// Bucket is the category a failure was classified into.
type Bucket string

const (
	// BucketGeneric is used when no error object is available.
	BucketGeneric Bucket = "generic"
	// BucketStructured is a typed error carrying a message.
	BucketStructured Bucket = "structured"
	// BucketOpaque is a loosely typed object carrying a message.
	BucketOpaque Bucket = "opaque"
)

const genericFailure = "Failed to execute query"

// CellError is the single error attached to a failed run.
type CellError struct {
	Bucket  Bucket `json:"-"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Outcome is the result of one run. Exactly one of Result and Error is set
// for Succeeded and Failed; neither is set for Cancelled.
type Outcome struct {
	Record        Record
	Result        *kusto.ResultSet
	Hint          Hint
	Visualization string
	Error         *CellError
}

// Outputs renders the outcome as cell outputs.
func (o Outcome) Outputs() ([]document.Output, error) {
	switch {
	case o.Error != nil:
		b, err := json.Marshal(o.Error)
		if err != nil {
			return nil, err
		}
		return []document.Output{{MIME: document.MIMEError, Value: b}}, nil
	case o.Result != nil:
		b, err := json.Marshal(o.Result)
		if err != nil {
			return nil, err
		}
		mime := document.MIMEResult
		if o.Hint == HintVisualize {
			mime = document.MIMEResultChart
		}
		return []document.Output{{MIME: mime, Value: b}}, nil
	}
	return nil, nil
}

// Normalize moves the primary result out of the general table list. When
// the service did not mark primary results they are taken from the tables
// named PrimaryResult. The hint is derived before the tables are stripped.
func Normalize(rs *kusto.ResultSet) (Hint, string) {
	if len(rs.PrimaryResults) == 0 {
		rs.PrimaryResults = rs.TableNamed(kusto.PrimaryResultName)
	}
	viz := rs.Visualization()

	tables := make([]kusto.Table, 0, len(rs.Tables))
	for _, t := range rs.Tables {
		if t.Name != kusto.PrimaryResultName {
			tables = append(tables, t)
		}
	}
	names := make([]string, 0, len(rs.TableNames))
	for _, n := range rs.TableNames {
		if n != kusto.PrimaryResultName {
			names = append(names, n)
		}
	}
	rs.Tables, rs.TableNames = tables, names

	if viz != "" && viz != "table" {
		return HintVisualize, viz
	}
	return HintTable, viz
}

// ClassifyError converts a failure into exactly one CellError. v may be nil,
// an error, or a decoded JSON object such as {"message": ..., "innererror": {...}}.
func ClassifyError(v any) *CellError {
	switch e := v.(type) {
	case nil:
		return &CellError{Bucket: BucketGeneric, Name: "Error", Message: genericFailure}
	case map[string]any:
		msg, ok := e["message"].(string)
		if !ok {
			return &CellError{Bucket: BucketGeneric, Name: "Error", Message: genericFailure}
		}
		if inner, ok := e["innererror"].(map[string]any); ok {
			if im, ok := inner["message"].(string); ok && im != "" {
				msg = fmt.Sprintf("%s (%s)", msg, im)
			}
		}
		return &CellError{Bucket: BucketOpaque, Message: msg}
	case error:
		var qe *kusto.QueryError
		if errors.As(e, &qe) {
			msg := qe.Error()
			if qe.InnerMessage != "" {
				msg = fmt.Sprintf("%s (%s)", msg, qe.InnerMessage)
			}
			return &CellError{Bucket: BucketStructured, Name: "QueryError", Message: msg}
		}
		name := "Error"
		if k := kerrors.KindOf(e); k != "" {
			name = string(k)
		}
		return &CellError{Bucket: BucketStructured, Name: name, Message: e.Error()}
	default:
		return &CellError{Bucket: BucketGeneric, Name: "Error", Message: genericFailure}
	}
}
