// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pterm/pterm"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/httperrors"
	"kqlnb/cli/internal/kusto"
)

// PresentError formats an error for user display with masking.
func PresentError(action string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", action, Mask(err.Error()))
}

// Category groups failures by what the user can do about them.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryQuery
	CategoryAuth
	CategoryTimeout
	CategoryCancelled
	CategoryUnavailable
	CategoryConnection
)

// Categorize inspects err's chain, including gRPC statuses from gateway
// clusters, and falls back to matching the message.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var qe *kusto.QueryError
	switch {
	case errors.As(err, &qe):
		switch qe.StatusCode {
		case 401, 403:
			return CategoryAuth
		case 502, 503, 504:
			return CategoryUnavailable
		}
		return CategoryQuery
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case kerrors.Has(err, kerrors.CredentialsMissing):
		return CategoryAuth
	case kerrors.Has(err, kerrors.ResolutionFailure), kerrors.Has(err, kerrors.UnknownBackend):
		return CategoryConnection
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return categorizeCode(st.Code())
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unauthenticated"), strings.Contains(lower, "unauthorized"):
		return CategoryAuth
	case strings.Contains(lower, "deadline"), strings.Contains(lower, "timeout"):
		return CategoryTimeout
	case strings.Contains(lower, "unavailable"), strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"):
		return CategoryUnavailable
	}
	return CategoryUnknown
}

func categorizeCode(c codes.Code) Category {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		return CategoryQuery
	case codes.Unauthenticated, codes.PermissionDenied:
		return CategoryAuth
	case codes.DeadlineExceeded:
		return CategoryTimeout
	case codes.Canceled:
		return CategoryCancelled
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return CategoryUnavailable
	}
	return CategoryUnknown
}

// FormatQueryError renders a failed query or connection for the terminal.
func FormatQueryError(cluster string, err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	cat := Categorize(err)

	var qe *kusto.QueryError
	var urlErr *url.Error
	if !errors.As(err, &qe) && cat != CategoryCancelled && errors.As(err, &urlErr) {
		b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Cluster unreachable"))
		b.WriteString("\n\n")
		b.WriteString(Mask(httperrors.Describe(err, "running the query", httperrors.ExtractHostFromURL(cluster))))
		return b.String()
	}

	title := "Query failed"
	switch cat {
	case CategoryAuth:
		title = "Authentication failed"
	case CategoryTimeout:
		title = "Query timed out"
	case CategoryCancelled:
		title = "Query cancelled"
	case CategoryUnavailable:
		title = "Cluster unavailable"
	case CategoryConnection:
		title = "No connection"
	}
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
	b.WriteString("\n\n")

	if qe != nil {
		b.WriteString(Mask(qe.Message))
		b.WriteString("\n")
		if qe.InnerMessage != "" {
			b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint(Mask(qe.InnerMessage)))
			b.WriteString("\n")
		}
	} else if msg := errorMessage(err); msg != "" {
		b.WriteString(Mask(msg))
		b.WriteString("\n")
	}

	hint := ""
	switch cat {
	case CategoryAuth:
		hint = strings.TrimSpace("Run 'kqlnb login "+cluster) + "' and try again"
	case CategoryUnavailable, CategoryTimeout:
		hint = "Check that the cluster is reachable and try again"
	case CategoryConnection:
		hint = "Run 'kqlnb use' to pick a connection"
	}
	if hint != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + hint))
		b.WriteString("\n")
	}
	return b.String()
}

// errorMessage prefers a gRPC status message over the status prefix.
func errorMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

// PresentQueryError prints FormatQueryError to the terminal.
func PresentQueryError(cluster string, err error) {
	pterm.Println()
	pterm.Println(FormatQueryError(cluster, err))
}
