// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"kqlnb/cli/internal/connection"
)

var connectionsRecent bool

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"ls"},
	Short:   "List saved connections",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var infos []connection.Info
		if connectionsRecent {
			infos, err = a.Recent.List(ctx)
		} else {
			infos, err = a.Connections.List(ctx)
		}
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			pterm.Info.Println("No connections. Add one with: kqlnb connect <cluster>")
			return nil
		}

		data := [][]string{{"Name", "Id", "Kind", "Details"}}
		for _, info := range infos {
			label, desc := connection.DisplayInfo(info)
			data = append(data, []string{label, info.ID, string(info.Kind), desc})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		info, ok, err := a.Connections.Find(ctx, args[0])
		if err == nil && !ok {
			info, ok, err = a.Connections.Find(ctx, connection.NormalizeCluster(args[0]))
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no saved connection %q (see 'kqlnb connections')", args[0])
		}
		if _, err := a.Connections.Remove(ctx, info.ID); err != nil {
			return err
		}
		a.Schemas.Invalidate(ctx, info)
		id := info.ID
		pterm.Success.Printf("Removed %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectionsCmd, removeCmd)
	connectionsCmd.Flags().BoolVar(&connectionsRecent, "recent", false, "list the connections recently used in this workspace")
}
