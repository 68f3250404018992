// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that crosses a component boundary (resolution, decoding, schema fetch,
// query execution, session construction) carries a machine-readable Kind so callers
// can decide whether to recover locally, surface it, or keep going with sibling work.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ResolutionFailure indicates no connection could be determined or the user cancelled.
	ResolutionFailure Kind = "resolution_failure"
	// DecodeError indicates a malformed canonical connection key.
	DecodeError Kind = "decode_error"
	// SchemaFetchError indicates the remote schema fetch failed.
	SchemaFetchError Kind = "schema_fetch_error"
	// QueryError indicates a structured remote query failure.
	QueryError Kind = "query_error"
	// SessionConstructionError indicates a client session could not be built.
	SessionConstructionError Kind = "session_construction_error"
	// UnknownBackend indicates no backend is registered for a cluster scheme.
	UnknownBackend Kind = "unknown_backend"
	// CredentialsMissing indicates the credential provider has nothing for a connection.
	CredentialsMissing Kind = "credentials_missing"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is matches another *E by kind, so errors.Is(err, errors.New(kind, "")) works.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	return ok && t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Has reports whether err's chain contains an *E of the given kind.
func Has(err error, kind Kind) bool {
	return stderrors.Is(err, &E{Kind: kind})
}
