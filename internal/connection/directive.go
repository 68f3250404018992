// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"strings"
	"unicode"
)

const (
	directivePrefix    = "%kql"
	directiveDelimiter = "azuredataexplorer://"
)

// DirectiveExample is a directive selecting the Samples database on the
// help cluster.
const DirectiveExample = "%kql AzureDataExplorer://code;cluster='help';database='Samples'"

// HasDirective reports whether the first line of source is a kqlmagic
// connection directive such as
//
//	%kql AzureDataExplorer://code;cluster='help';database='Samples'
func HasDirective(source string) bool {
	line := firstLine(source)
	return strings.HasPrefix(line, directivePrefix) &&
		strings.Contains(strings.ToLower(line), directiveDelimiter)
}

// ParseDirective extracts the cluster and database named by a kqlmagic
// directive on the first line of source. A bare cluster name expands to
// https://<name>.kusto.windows.net.
func ParseDirective(source string) (Info, bool) {
	if !HasDirective(source) {
		return Info{}, false
	}
	line := firstLine(source)
	rest := line[strings.Index(strings.ToLower(line), directiveDelimiter)+len(directiveDelimiter):]
	rest = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, rest)

	delimiter := `"`
	if strings.Contains(rest, "'") {
		delimiter = "'"
	}
	// code;cluster='help';database='Samples' splits into
	// [code;cluster= help ;database= Samples ]
	parts := strings.Split(rest, delimiter)
	cluster := valueAfter(parts, "cluster=")
	database := valueAfter(parts, "database=")
	if cluster == "" || database == "" {
		return Info{}, false
	}
	return NewAzureAuth(expandCluster(cluster), database), true
}

func valueAfter(parts []string, key string) string {
	for i, p := range parts {
		if strings.HasSuffix(strings.ToLower(p), key) && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func expandCluster(name string) string {
	switch {
	case strings.Contains(name, "://"):
		return name
	case strings.Contains(name, "."):
		return "https://" + strings.ToLower(name)
	default:
		return "https://" + strings.ToLower(name) + ".kusto.windows.net"
	}
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// StripDirective removes a leading directive line so the rest of source can
// be sent as a query.
func StripDirective(source string) string {
	if !HasDirective(source) {
		return source
	}
	rest := source[len(firstLine(source)):]
	return strings.TrimLeft(rest, "\r\n")
}
