// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors explains transport failures talking to clusters.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Reason is the detected cause of a transport failure.
type Reason int

const (
	ReasonOther Reason = iota
	ReasonTimeout
	ReasonDNS
	ReasonRefused
	ReasonTLS
	ReasonServer
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonDNS:
		return "dns"
	case ReasonRefused:
		return "refused"
	case ReasonTLS:
		return "tls"
	case ReasonServer:
		return "server"
	}
	return "other"
}

// IsNetworkError reports whether err looks like a transport failure rather
// than a query or credential problem.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr) || Detect(err) != ReasonOther
}

// Detect classifies err.
func Detect(err error) Reason {
	switch {
	case err == nil:
		return ReasonOther
	case isTimeoutError(err):
		return ReasonTimeout
	case isDNSError(err):
		return ReasonDNS
	case isConnectionRefusedError(err):
		return ReasonRefused
	case isSSLError(err):
		return ReasonTLS
	case isServerError(err.Error()):
		return ReasonServer
	}
	return ReasonOther
}

// Describe renders the troubleshooting message.
func Describe(err error, action, host string) string {
	var b strings.Builder
	line := func(s string) { b.WriteString(s + "\n") }

	switch Detect(err) {
	case ReasonTimeout:
		line(fmt.Sprintf("⏱️  Timed out while %s", action))
		line("")
		line(host + " took too long to respond. Long-running queries may need a larger http.timeout.")
	case ReasonDNS:
		line(fmt.Sprintf("🌐 Cannot resolve %s while %s", host, action))
		line("")
		line("Check the cluster URL and your DNS settings.")
	case ReasonRefused:
		line(fmt.Sprintf("🚫 Connection refused while %s", action))
		line("")
		line(host + " is not accepting connections. Check the port and that the service is running.")
	case ReasonTLS:
		line(fmt.Sprintf("🔒 Secure connection to %s failed while %s", host, action))
		line("")
		line("Check your system clock and any proxy intercepting HTTPS.")
	case ReasonServer:
		line(fmt.Sprintf("⚠️  %s returned a server error while %s", host, action))
		line("")
		line("The cluster is having trouble. Try again in a few minutes.")
	default:
		line(fmt.Sprintf("❌ Cannot reach %s while %s", host, action))
		line("")
		if details := err.Error(); details != "" {
			if len(details) > 100 {
				details = details[:100] + "..."
			}
			line("Technical details: " + details)
		}
	}
	line("")
	return b.String()
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// isServerError matches 5xx statuses in the message.
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, s := range []string{"status 500", "status 502", "status 503", "status 504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "the cluster"
	}
	return u.Host
}
