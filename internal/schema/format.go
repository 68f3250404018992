// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"fmt"
	"strings"

	"kqlnb/cli/internal/kusto"
)

// FormatForModel lists the tables and functions of one database in a
// compact form suitable for language models. activeDatabase defaults to
// the first database. It returns "" when the snapshot has no databases or
// the requested one does not exist.
func FormatForModel(s *kusto.EngineSchema, activeDatabase string) string {
	if s == nil || len(s.Databases) == 0 {
		return ""
	}
	if activeDatabase == "" {
		activeDatabase = s.Databases[0].Name
	}
	db, ok := s.Database(activeDatabase)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Below is a list of tables and functions in the Kusto database %s.\n", db.Name)
	b.WriteString("<tables>\n")
	for i, t := range db.Tables {
		cols := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = c.Name + ":" + c.Type
		}
		fmt.Fprintf(&b, "%d. %s(%s)\n", i+1, t.Name, strings.Join(cols, ", "))
	}
	b.WriteString("</tables>\n<functions>\n")
	for i, f := range db.Functions {
		fmt.Fprintf(&b, "%d. %s=(%s)\n", i+1, f.Name, parameterList(f.InputParameters))
	}
	b.WriteString("</functions>\n")
	return b.String()
}

// FunctionCode renders a function as a let statement followed by its body.
func FunctionCode(f kusto.FunctionSchema) string {
	return fmt.Sprintf("let %s = (%s)\n%s", f.Name, parameterList(f.InputParameters), f.Body)
}

func parameterList(params []kusto.ParameterSchema) string {
	out := make([]string, len(params))
	for i, p := range params {
		if p.Type == "" {
			out[i] = p.Name
			continue
		}
		out[i] = p.Name + ":" + p.Type
	}
	return strings.Join(out, ", ")
}
