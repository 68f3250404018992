// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/logging"
	"kqlnb/cli/internal/schema"
)

var (
	treeRefresh  bool
	treeIndexes  bool
	treeColumns  bool
	newFromNode  int
	newCluster   string
	schemaFunc   string
	schemaReload bool
)

var treeCmd = &cobra.Command{
	Use:   "tree [cluster]",
	Short: "Browse the schema of saved connections",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if _, err := a.LoadConnections(ctx); err != nil {
			return err
		}
		if treeRefresh {
			a.Explorer.Refresh(ctx)
		}

		for _, t := range a.Explorer.Clusters() {
			if len(args) == 1 && t.Connection.ID != connection.NormalizeCluster(args[0]) && t.Connection.ID != args[0] {
				continue
			}
			if t.Errored() {
				logging.PresentQueryError(t.Connection.Cluster, t.Err)
			}
			root := treeNode(&t, 0)
			if err := pterm.DefaultTree.WithRoot(pterm.TreeNode{Children: []pterm.TreeNode{root}}).Render(); err != nil {
				return err
			}
		}
		return nil
	},
}

func treeNode(t *schema.Tree, i int) pterm.TreeNode {
	n := t.Nodes[i]
	text := n.Label
	switch n.Kind {
	case schema.NodeColumn, schema.NodeParameter:
		text = fmt.Sprintf("%s %s", n.Label, pterm.Gray(n.Type))
	case schema.NodeCluster:
		text = pterm.Bold.Sprint(n.Label)
		if t.Errored() {
			text += pterm.Red(" (unavailable)")
		}
	case schema.NodeGroup, schema.NodeFolder:
		text = pterm.Cyan(n.Label)
	}
	if treeIndexes {
		text = fmt.Sprintf("%s %s", pterm.Gray(fmt.Sprintf("[%d]", i)), text)
	}
	out := pterm.TreeNode{Text: text}
	if n.Kind == schema.NodeTable && !treeColumns {
		return out
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, treeNode(t, c))
	}
	return out
}

var schemaCmd = &cobra.Command{
	Use:   "schema <cluster> [database]",
	Short: "Print the schema listing of a database, or one function's code",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		info, ok, err := a.Connections.Find(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			info = connection.NewAzureAuth(args[0], "")
		}
		database := ""
		if len(args) > 1 {
			database = args[1]
		}

		s, err := a.Schemas.Get(cmd.Context(), info, schemaReload)
		if err != nil {
			logging.PresentQueryError(info.Cluster, err)
			return err
		}
		if schemaFunc != "" {
			if database == "" && len(s.Databases) > 0 {
				database = s.Databases[0].Name
			}
			db, ok := s.Database(database)
			if !ok {
				return fmt.Errorf("no database %q on %s", database, info.ID)
			}
			for _, f := range db.Functions {
				if f.Name == schemaFunc {
					fmt.Println(schema.FunctionCode(f))
					return nil
				}
			}
			return fmt.Errorf("no function %q in %s", schemaFunc, db.Name)
		}
		out := schema.FormatForModel(s, database)
		if out == "" {
			return fmt.Errorf("no database %q on %s", database, info.ID)
		}
		fmt.Print(out)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new <file.knb>",
	Short: "Create a notebook bound to a database or table from 'kqlnb tree --indexes'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		info, ok, err := a.Connections.Find(ctx, newCluster)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no saved connection %q", newCluster)
		}
		if err := a.Explorer.AddConnection(ctx, info); err != nil {
			return err
		}
		conn, query, ok := a.Explorer.SampleQuery(schema.Ref{Cluster: info.ID, Index: newFromNode})
		if !ok {
			return fmt.Errorf("node %d is not a database or table of %s", newFromNode, info.ID)
		}

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		doc := document.New("file://"+filepath.ToSlash(abs), document.KindKustoNotebook,
			[]document.Cell{{Kind: document.CellCode, Source: query}}, nil)
		doc.SetConnection(conn)
		if err := document.Save(doc, abs); err != nil {
			return err
		}
		pterm.Success.Printf("Created %s on %s/%s\n", args[0], conn.DisplayName, conn.Database)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd, schemaCmd, newCmd)
	treeCmd.Flags().BoolVar(&treeRefresh, "refresh", false, "re-fetch every schema")
	treeCmd.Flags().BoolVar(&treeIndexes, "indexes", false, "show node indexes")
	treeCmd.Flags().BoolVar(&treeColumns, "columns", false, "show table columns")
	schemaCmd.Flags().StringVar(&schemaFunc, "function", "", "print the code of this function")
	schemaCmd.Flags().BoolVar(&schemaReload, "refresh", false, "ignore the cached snapshot")
	newCmd.Flags().StringVar(&newCluster, "cluster", "", "saved connection id")
	newCmd.Flags().IntVar(&newFromNode, "node", 0, "node index from 'kqlnb tree --indexes'")
	_ = newCmd.MarkFlagRequired("cluster")
}
