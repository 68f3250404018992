// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "kqlnb/cli/internal/errors"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info Info
	}{
		{"cluster with database", Info{ID: "c1", DisplayName: "help", Kind: KindAzureAuth, Cluster: "https://x", Database: "db1"}},
		{"cluster without database", Info{ID: "c1", DisplayName: "help", Kind: KindAzureAuth, Cluster: "https://x"}},
		{"app insights", Info{ID: "app-1", DisplayName: "My App", Kind: KindAppInsights}},
		{"html characters", Info{ID: "a<b>&c", DisplayName: "<x>", Kind: KindAzureAuth, Cluster: "https://x?a=1&b=2", Database: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Encode(tt.info)
			got, err := Decode(key)
			require.NoError(t, err)
			assert.Equal(t, tt.info, got)
			assert.Equal(t, key, Encode(got), "re-encoding a decoded value is idempotent")
		})
	}
}

func TestEncode_SortedKeys(t *testing.T) {
	key := Encode(Info{ID: "c1", DisplayName: "help", Kind: KindAzureAuth, Cluster: "https://x", Database: "db1"})
	raw, err := base64.StdEncoding.DecodeString(string(key))
	require.NoError(t, err)
	assert.Equal(t, `{"cluster":"https://x","database":"db1","displayName":"help","id":"c1","type":"azAuth"}`, string(raw))
}

func TestDecode_IndependentOfFieldOrder(t *testing.T) {
	a := base64.StdEncoding.EncodeToString([]byte(`{"type":"azAuth","id":"c1","database":"db1","cluster":"https://x","displayName":"help"}`))
	b := base64.StdEncoding.EncodeToString([]byte(`{"displayName":"help","cluster":"https://x","id":"c1","database":"db1","type":"azAuth"}`))

	infoA, err := Decode(Key(a))
	require.NoError(t, err)
	infoB, err := Decode(Key(b))
	require.NoError(t, err)

	assert.Equal(t, infoA, infoB)
	assert.Equal(t, Encode(infoA), Encode(infoB))
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  Key
	}{
		{"not base64", Key("%%%")},
		{"not json", Key(base64.StdEncoding.EncodeToString([]byte("nope")))},
		{"unknown type", Key(base64.StdEncoding.EncodeToString([]byte(`{"type":"odbc","id":"x"}`)))},
		{"no type or cluster", Key(base64.StdEncoding.EncodeToString([]byte(`{"id":"x"}`)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.key)
			require.Error(t, err)
			assert.True(t, kerrors.Has(err, kerrors.DecodeError))
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		info *Info
		want bool
	}{
		{"nil", nil, false},
		{"cluster and database", &Info{Kind: KindAzureAuth, Cluster: "https://x", Database: "db"}, true},
		{"cluster only", &Info{Kind: KindAzureAuth, Cluster: "https://x"}, false},
		{"app insights with id", &Info{Kind: KindAppInsights, ID: "app"}, true},
		{"app insights without id", &Info{Kind: KindAppInsights}, false},
		{"untagged cluster and database", &Info{Cluster: "https://x", Database: "db"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.info))
		})
	}
}

func TestDisplayInfo(t *testing.T) {
	label, desc := DisplayInfo(NewAzureAuth("help.kusto.windows.net/", "Samples"))
	assert.Equal(t, "Kusto help (Samples)", label)
	assert.Equal(t, "https://help.kusto.windows.net", desc)

	label, desc = DisplayInfo(NewAzureAuth("https://help.kusto.windows.net", ""))
	assert.Equal(t, "Kusto help", label)
	assert.Equal(t, "https://help.kusto.windows.net", desc)

	label, desc = DisplayInfo(Info{ID: "app", Kind: KindAppInsights})
	assert.Equal(t, "Kusto app", label)
	assert.Empty(t, desc)
}

func TestFromMetadata(t *testing.T) {
	full := NewAzureAuth("https://help.kusto.windows.net", "Samples")

	tests := []struct {
		name     string
		metadata map[string]any
		want     Info
		ok       bool
	}{
		{"none", map[string]any{}, Info{}, false},
		{"full form", map[string]any{"connection": full.Metadata()}, full, true},
		{"short cluster form", map[string]any{"connection": map[string]any{"cluster": "https://help.kusto.windows.net", "database": "Samples"}}, full, true},
		{"app insights", map[string]any{"connection": map[string]any{"appInsightsId": "app"}}, NewAppInsights("app", ""), true},
		{"garbage", map[string]any{"connection": map[string]any{"type": "odbc"}}, Info{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromMetadata(tt.metadata)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
