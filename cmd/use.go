// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
)

var useSave bool

var useCmd = &cobra.Command{
	Use:   "use <file> [cluster] [database]",
	Short: "Show or change the connection of a document",
	Long: `Without a cluster, asks for the connection interactively. Kusto notebooks
store it in their metadata (written back with --save); other documents keep
it in the state database.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		doc, err := a.Open(args[0], "")
		if err != nil {
			return err
		}
		defer a.CloseDocument(doc)

		var info *connection.Info
		if len(args) > 1 {
			db := ""
			if len(args) > 2 {
				db = args[2]
			}
			c := connection.NewAzureAuth(args[1], db)
			if err := a.Backends.Validate(c); err != nil {
				return err
			}
			a.Resolver.Apply(doc, c)
			a.Resolver.Remember(ctx, doc, c)
			info = &c
		} else {
			if info, err = a.Resolver.ChangeConnection(ctx, doc); err != nil {
				return err
			}
		}
		if info == nil {
			pterm.Warning.Println("Connection unchanged")
			return nil
		}
		if err := a.Recent.Add(ctx, *info); err != nil {
			a.Log.Debug("record recent connection failed", zap.Error(err))
		}

		label, desc := connection.DisplayInfo(*info)
		pterm.Success.Printf("%s now uses %s %s\n", args[0], label, desc)

		if useSave && doc.IsKustoNotebook() {
			return document.Save(doc, args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().BoolVar(&useSave, "save", true, "write the connection into the notebook file")
}
