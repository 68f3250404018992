// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package kusto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kqlnb/cli/internal/httperrors"
)

// DefaultTimeout bounds one HTTP round trip.
const DefaultTimeout = 5 * time.Minute

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// applicationName is sent in x-ms-app so server-side traces can attribute traffic.
const applicationName = "kqlnb"

// transport is the HTTP plumbing shared by the REST clients.
type transport struct {
	http *http.Client
	log  *zap.Logger
}

// Option configures a REST client.
type Option func(*transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.http = c }
}

// WithTimeout sets the HTTP client timeout. A client passed with
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(t *transport) {
		if d > 0 {
			c := *t.http
			c.Timeout = d
			t.http = &c
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(t *transport) {
		if l != nil {
			t.log = l
		}
	}
}

func newTransport(opts []Option) transport {
	t := transport{http: &http.Client{Timeout: DefaultTimeout}, log: zap.NewNop()}
	for _, o := range opts {
		o(&t)
	}
	return t
}

// do sends a JSON request and returns the response body for 2xx status codes.
// Other status codes become a *QueryError.
func (t *transport) do(ctx context.Context, method, url string, body any, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	requestID := applicationName + ";" + uuid.NewString()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("x-ms-app", applicationName)
	req.Header.Set("x-ms-client-request-id", requestID)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Debug("kusto request failed",
			zap.String("method", method),
			zap.String("host", httperrors.ExtractHostFromURL(url)),
			zap.String("request_id", requestID),
			zap.Stringer("reason", httperrors.Detect(err)),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var src io.Reader = resp.Body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		src = io.LimitReader(resp.Body, maxErrorBody)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	t.log.Debug("kusto request",
		zap.String("method", method),
		zap.String("url", url),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, data)
	}
	return data, nil
}

func (t *transport) close() {
	t.http.CloseIdleConnections()
}
