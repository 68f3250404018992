// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"strings"

	"github.com/pterm/pterm"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/terminal"
)

const enterCluster = "Enter a cluster URL..."

// capturePrompt asks for a connection on the terminal. Outside a terminal
// it behaves as a cancelled prompt.
type capturePrompt struct {
	connections *connection.Storage
}

func (p *capturePrompt) Ask(ctx context.Context, seed *connection.Info) (*connection.Info, error) {
	if !terminal.IsInteractive() {
		return nil, nil
	}

	var saved []connection.Info
	if p.connections != nil {
		saved, _ = p.connections.List(ctx)
	}

	var picked *connection.Info
	if len(saved) > 0 {
		options := make([]string, 0, len(saved)+1)
		byLabel := make(map[string]connection.Info, len(saved))
		def := ""
		for _, s := range saved {
			label, desc := connection.DisplayInfo(s)
			if desc != "" {
				label += " (" + desc + ")"
			}
			options = append(options, label)
			byLabel[label] = s
			if seed != nil && seed.ID == s.ID {
				def = label
			}
		}
		options = append(options, enterCluster)
		sel := pterm.DefaultInteractiveSelect.WithOptions(options)
		if def != "" {
			sel = sel.WithDefaultOption(def)
		}
		choice, err := sel.Show("Select a connection")
		if err != nil {
			return nil, err
		}
		if info, ok := byLabel[choice]; ok {
			picked = &info
		}
	}

	if picked == nil {
		def := ""
		if seed != nil {
			def = seed.Cluster
		}
		cluster, err := pterm.DefaultInteractiveTextInput.WithDefaultValue(def).Show("Cluster URL")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(cluster) == "" {
			return nil, nil
		}
		info := connection.NewAzureAuth(cluster, "")
		picked = &info
	}

	if picked.Kind == connection.KindAppInsights {
		return picked, nil
	}
	def := picked.Database
	if def == "" && seed != nil && seed.ID == picked.ID {
		def = seed.Database
	}
	database, err := pterm.DefaultInteractiveTextInput.WithDefaultValue(def).Show("Database")
	if err != nil {
		return nil, err
	}
	info := picked.WithDatabase(strings.TrimSpace(database))
	return &info, nil
}
