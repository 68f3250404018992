// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn parses PostgreSQL connection strings used as cluster URIs.
// A cluster URI never carries a password: Split moves it out so it can be
// kept in the keychain while the password-less URI is stored and displayed.
package dsn

import "fmt"

// Info contains parsed information from a DSN string.
type Info struct {
	Scheme   string
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
	Original string
}

// ParseError represents an error that occurred during DSN parsing.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError.
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint}
}
