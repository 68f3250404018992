// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"kqlnb/cli/internal/app"
	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/document"
	"kqlnb/cli/internal/execution"
	"kqlnb/cli/internal/kernel"
	"kqlnb/cli/internal/terminal"
)

var (
	runCells   []int
	runSave    bool
	runChange  bool
	runAsKind  string
	runMaxRows int
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run the cells of a notebook or the queries of a .kql file",
	Long: `Runs every code cell of a notebook (or the cells given with --cell, counted
from 1) against the document's connection. When the document has no
connection yet you are asked for one; --change-connection asks again.

.kql files are split into queries at blank lines. A first line such as

  `+connection.DirectiveExample+`

selects the connection for the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		doc, err := a.Open(args[0], document.Kind(runAsKind))
		if err != nil {
			return err
		}
		defer a.CloseDocument(doc)

		cells, err := pickCells(doc, runCells)
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			pterm.Info.Println("Nothing to run")
			return nil
		}

		var outcomes []execution.Outcome
		if doc.IsNotebook() {
			e, err := executorFor(ctx, a, doc, runChange)
			if err != nil {
				return err
			}
			if e == nil {
				pterm.Warning.Println("No connection selected")
				return nil
			}
			pterm.Info.Printf("Running on %s\n", e.Label())
			spin := terminal.StartSpinner(fmt.Sprintf("running %d cell(s)", len(cells)))
			outcomes = e.ExecuteCells(ctx, doc, cells)
			spin.Stop()
		} else {
			if runChange {
				if _, err := a.Resolver.ChangeConnection(ctx, doc); err != nil {
					return err
				}
			}
			runner := execution.NewRunner(a.Sessions, a.Log)
			for _, i := range cells {
				outcomes = append(outcomes, runner.Run(ctx, doc, i))
			}
		}

		failed := 0
		for n, o := range outcomes {
			renderOutcome(cells[n], o, runMaxRows, runJSON)
			if o.Record.State == execution.Failed {
				failed++
			}
		}

		if runSave {
			if err := document.Save(doc, args[0]); err != nil {
				if errors.Is(err, document.ErrNotSavable) {
					pterm.Warning.Println("Only .knb notebooks can be saved; outputs were not written")
				} else {
					return err
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cell(s) failed", failed, len(outcomes))
		}
		return nil
	},
}

// executorFor reuses the connection doc already resolves to, or asks for
// one through the picker.
func executorFor(ctx context.Context, a *app.App, doc *document.Document, change bool) (*kernel.Executor, error) {
	if !change {
		if info := a.Resolver.Current(ctx, doc); info != nil {
			e := a.Kernels.GetOrCreate(doc.Kind, *info)
			e.Select(ctx, doc)
			return e, nil
		}
	}
	p, ok := a.Kernels.Picker(doc.Kind)
	if !ok {
		return nil, fmt.Errorf("no executor for %s documents", doc.Kind)
	}
	return p.Select(ctx, doc)
}

// pickCells converts 1-based cell numbers to indexes of code cells. With
// no numbers every code cell is returned.
func pickCells(doc *document.Document, numbers []int) ([]int, error) {
	all := doc.Cells()
	if len(numbers) == 0 {
		var out []int
		for i, c := range all {
			if c.Kind == document.CellCode {
				out = append(out, i)
			}
		}
		return out, nil
	}
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(all) {
			return nil, fmt.Errorf("cell %d out of range (document has %d)", n, len(all))
		}
		out = append(out, n-1)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntSliceVarP(&runCells, "cell", "c", nil, "cells to run, counted from 1 (repeatable)")
	runCmd.Flags().BoolVar(&runSave, "save", false, "write outputs back into the notebook")
	runCmd.Flags().BoolVar(&runChange, "change-connection", false, "ask for a connection even if one is known")
	runCmd.Flags().StringVar(&runAsKind, "as", "", "open as a different document kind, e.g. kusto-notebook-kql")
	runCmd.Flags().IntVar(&runMaxRows, "max-rows", 50, "rows shown per table (0 for all)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print primary results as JSON")
}
