// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{"without cause", New(ResolutionFailure, "no connection"), "resolution_failure: no connection"},
		{"with cause", Wrap(SchemaFetchError, "fetch help", io.EOF), "schema_fetch_error: fetch help: EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(SessionConstructionError, "build", io.EOF))

	assert.True(t, Has(err, SessionConstructionError))
	assert.False(t, Has(err, QueryError))
	assert.Equal(t, SessionConstructionError, KindOf(err))
	assert.True(t, stderrors.Is(err, io.EOF))
	assert.Equal(t, Kind(""), KindOf(io.EOF))
}
