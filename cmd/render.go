// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"kqlnb/cli/internal/execution"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/logging"
)

// renderOutcome prints one cell outcome.
func renderOutcome(cell int, o execution.Outcome, maxRows int, asJSON bool) {
	header := fmt.Sprintf("Cell %d · %s · %s", cell+1, o.Record.State, o.Record.Duration().Round(time.Millisecond))
	pterm.DefaultSection.WithLevel(2).Println(header)

	switch {
	case o.Error != nil:
		pterm.Error.Println(logging.Mask(o.Error.Message))
	case o.Result != nil:
		if asJSON {
			b, _ := json.MarshalIndent(o.Result.PrimaryResults, "", "  ")
			fmt.Println(string(b))
			return
		}
		if o.Hint == execution.HintVisualize {
			pterm.Info.Printf("Query asked to render %q; showing the data as a table\n", o.Visualization)
		}
		for _, t := range o.Result.PrimaryResults {
			renderTable(t, maxRows)
		}
	default:
		pterm.Warning.Println("Cancelled")
	}
}

func renderTable(t kusto.Table, maxRows int) {
	data := make([][]string, 0, len(t.Rows)+1)
	head := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		head[i] = c.Name
	}
	data = append(data, head)
	for i, row := range t.Rows {
		if maxRows > 0 && i >= maxRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatValue(v)
		}
		data = append(data, cells)
	}
	if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render(); err != nil {
		pterm.Error.Println(err)
	}
	if maxRows > 0 && len(t.Rows) > maxRows {
		pterm.Info.Printf("%d of %d rows shown\n", maxRows, len(t.Rows))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
