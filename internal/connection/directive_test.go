// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		cluster  string
		database string
		ok       bool
	}{
		{
			name:     "single quotes",
			source:   "%kql AzureDataExplorer://code;cluster='help';database='Samples'\nStormEvents | take 10",
			cluster:  "https://help.kusto.windows.net",
			database: "Samples",
			ok:       true,
		},
		{
			name:     "double quotes and spacing",
			source:   `%kql azureDataExplorer://code; cluster = "Help" ; database = "db"`,
			cluster:  "https://help.kusto.windows.net",
			database: "db",
			ok:       true,
		},
		{
			name:     "fully qualified host",
			source:   "%kql AzureDataExplorer://code;cluster='mycluster.westus.kusto.windows.net';database='logs'",
			cluster:  "https://mycluster.westus.kusto.windows.net",
			database: "logs",
			ok:       true,
		},
		{name: "not a directive", source: "StormEvents | take 10"},
		{name: "directive not on first line", source: "\n%kql AzureDataExplorer://code;cluster='help';database='Samples'"},
		{name: "missing database", source: "%kql AzureDataExplorer://code;cluster='help'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := ParseDirective(tt.source)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, KindAzureAuth, info.Kind)
			assert.Equal(t, tt.cluster, info.Cluster)
			assert.Equal(t, tt.database, info.Database)
			assert.True(t, IsValid(&info))
		})
	}
}

func TestStripDirective(t *testing.T) {
	assert.Equal(t, "StormEvents | take 1",
		StripDirective("%kql AzureDataExplorer://code;cluster='help';database='Samples'\r\nStormEvents | take 1"))
	assert.Equal(t, "", StripDirective("%kql AzureDataExplorer://code;cluster='help';database='Samples'"))
	assert.Equal(t, "T\n| take 1", StripDirective("T\n| take 1"))
}

func TestDirectiveExample(t *testing.T) {
	info, ok := ParseDirective(DirectiveExample + "\nStormEvents | count")
	assert.True(t, ok)
	assert.Equal(t, "https://help.kusto.windows.net", info.Cluster)
	assert.Equal(t, "Samples", info.Database)
}
