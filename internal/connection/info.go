// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package connection describes remote query targets and their canonical keys.
//
// An Info is an immutable value: it is created by a capture prompt, parsed from
// document metadata or an inline directive, and replaced (never mutated) when the
// user picks another target. Every cache in kqlnb is keyed by the canonical Key
// produced by Encode, never by struct layout or field order.
package connection

import (
	"net/url"
	"strings"
)

// Kind tags the variant of an Info.
type Kind string

const (
	// KindAzureAuth is a cluster reached with an Azure AD bearer token.
	KindAzureAuth Kind = "azAuth"
	// KindAppInsights is an Application Insights app reached with an app id/key pair.
	KindAppInsights Kind = "appInsights"
)

// Info identifies one logical query target.
// For KindAzureAuth, Cluster is set and Database is optional.
// For KindAppInsights, only ID and DisplayName are meaningful.
type Info struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Kind        Kind   `json:"type"`
	Cluster     string `json:"cluster,omitempty"`
	Database    string `json:"database,omitempty"`
}

// IsValid reports whether info is complete enough to run queries.
// A cluster connection needs both cluster and database; an App Insights
// connection needs an id. Untagged values are judged by cluster and database.
func IsValid(info *Info) bool {
	if info == nil {
		return false
	}
	switch info.Kind {
	case KindAzureAuth:
		return info.Cluster != "" && info.Database != ""
	case KindAppInsights:
		return info.ID != ""
	default:
		return info.Cluster != "" && info.Database != ""
	}
}

// WithDatabase returns a copy of info bound to database.
func (i Info) WithDatabase(database string) Info {
	i.Database = database
	return i
}

// NewAzureAuth builds a cluster connection from a cluster URI.
// The id is the normalized URI and the display name is the first host label.
func NewAzureAuth(cluster, database string) Info {
	cluster = NormalizeCluster(cluster)
	return Info{
		ID:          cluster,
		DisplayName: ClusterDisplayName(cluster),
		Kind:        KindAzureAuth,
		Cluster:     cluster,
		Database:    database,
	}
}

// NewAppInsights builds an App Insights connection for an application id.
func NewAppInsights(appID, displayName string) Info {
	if displayName == "" {
		displayName = appID
	}
	return Info{ID: appID, DisplayName: displayName, Kind: KindAppInsights}
}

// NormalizeCluster trims whitespace and trailing slashes and defaults the
// scheme to https.
func NormalizeCluster(cluster string) string {
	cluster = strings.TrimRight(strings.TrimSpace(cluster), "/")
	if cluster == "" {
		return ""
	}
	if !strings.Contains(cluster, "://") {
		cluster = "https://" + cluster
	}
	return cluster
}

// ClusterDisplayName returns the first label of the cluster host,
// e.g. "help" for https://help.kusto.windows.net.
func ClusterDisplayName(cluster string) string {
	u, err := url.Parse(cluster)
	if err != nil || u.Hostname() == "" {
		return cluster
	}
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

// DisplayInfo returns a label and description for pickers and lists.
func DisplayInfo(info Info) (label, description string) {
	name := info.DisplayName
	if name == "" {
		name = info.ID
	}
	if info.Kind == KindAppInsights {
		return "Kusto " + name, ""
	}
	label = "Kusto " + name
	if info.Database != "" {
		label += " (" + info.Database + ")"
	}
	return label, info.Cluster
}

// fields returns info as a flat map holding only the keys the variant carries.
func (i Info) fields() map[string]string {
	m := map[string]string{
		"id":          i.ID,
		"displayName": i.DisplayName,
		"type":        string(i.Kind),
	}
	if i.Kind != KindAppInsights {
		m["cluster"] = i.Cluster
		if i.Database != "" {
			m["database"] = i.Database
		}
	}
	return m
}

// Metadata returns info in the shape stored under a notebook's "connection" metadata key.
func (i Info) Metadata() map[string]any {
	out := make(map[string]any)
	for k, v := range i.fields() {
		out[k] = v
	}
	return out
}

// FromMetadata extracts a connection from notebook metadata.
// It accepts the full form written by Metadata as well as the short forms
// {cluster, database} and {appInsightsId}.
func FromMetadata(metadata map[string]any) (Info, bool) {
	raw, ok := metadata["connection"].(map[string]any)
	if !ok || len(raw) == 0 {
		return Info{}, false
	}
	get := func(k string) string {
		s, _ := raw[k].(string)
		return s
	}

	if id := get("appInsightsId"); id != "" {
		return NewAppInsights(id, get("displayName")), true
	}
	info, err := fromFields(get)
	if err != nil {
		return Info{}, false
	}
	return info, true
}

// fromFields builds an Info from loosely-typed fields, inferring the kind
// from the presence of a cluster when no type is given.
func fromFields(get func(string) string) (Info, error) {
	kind := Kind(get("type"))
	switch kind {
	case KindAzureAuth, KindAppInsights:
	case "":
		if get("cluster") == "" {
			return Info{}, errUnknownKind
		}
		kind = KindAzureAuth
	default:
		return Info{}, errUnknownKind
	}

	if kind == KindAppInsights {
		return Info{ID: get("id"), DisplayName: get("displayName"), Kind: kind}, nil
	}
	info := NewAzureAuth(get("cluster"), get("database"))
	if id := get("id"); id != "" {
		info.ID = id
	}
	if name := get("displayName"); name != "" {
		info.DisplayName = name
	}
	return info, nil
}
