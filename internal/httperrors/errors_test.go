// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ReasonTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.kusto.windows.net"}, ReasonDNS},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ReasonRefused},
		{"tls", errors.New("x509: certificate signed by unknown authority"), ReasonTLS},
		{"server", errors.New("query failed with status 503"), ReasonServer},
		{"other", errors.New("unexpected EOF"), ReasonOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	out := Describe(&net.DNSError{Err: "no such host", Name: "nope"}, "running a query", "nope.kusto.windows.net")
	assert.Contains(t, out, "Cannot resolve nope.kusto.windows.net while running a query")

	out = Describe(errors.New("unexpected EOF"), "fetching schema", "help.kusto.windows.net")
	assert.Contains(t, out, "Technical details: unexpected EOF")
}

func TestExtractHostFromURL(t *testing.T) {
	assert.Equal(t, "help.kusto.windows.net", ExtractHostFromURL("https://help.kusto.windows.net"))
	assert.Equal(t, "the cluster", ExtractHostFromURL("help"))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "dns", ReasonDNS.String())
	assert.Equal(t, "other", Reason(42).String())
}
