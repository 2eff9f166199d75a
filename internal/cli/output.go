package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/Healer-AI/p8fs-sub000/domain/rem"
)

// Output formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

func validFormat(f string) error {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

// writeStructured prints v as JSON or YAML. YAML goes through JSON first so
// types with custom JSON encodings render the same way in both.
func writeStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == FormatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// writeResult renders a query result.
func writeResult(w io.Writer, format string, res *rem.Result) error {
	if format != FormatTable {
		return writeStructured(w, format, res)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Key", "Table", "Type", "Depth", "Score")
	for _, e := range res.Results {
		depth := ""
		if d, ok := e.TraverseDepth(); ok {
			depth = fmt.Sprint(d)
		}
		score := ""
		for _, field := range []string{"similarity", "similarity_score"} {
			v, _ := e.Get(field)
			if f, ok := v.(float64); ok {
				score = fmt.Sprintf("%.3f", f)
				break
			}
		}
		if err := table.Append(e.Key(), e.TableName(), e.EntityType(), depth, score); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d result(s), %s query on %s\n", res.Count, res.QueryType, res.Backend)
	if res.Traverse != nil {
		writeTraverseSummary(w, res.Traverse)
	}
	return nil
}

func writeTraverseSummary(w io.Writer, t *rem.TraverseResponse) {
	for _, stage := range t.Stages {
		fmt.Fprintf(w, "  depth %d: %s (%d nodes, %d edges)\n",
			stage.Depth, stage.Executed, stage.Found.Nodes, stage.Found.Edges)
	}
	for _, edge := range t.EdgeSummary {
		fmt.Fprintf(w, "  %s\n", strings.Join(edge[:], " -> "))
	}
	if t.Analysis != nil {
		types := make([]string, 0, len(t.Analysis.EdgeTypes))
		for name := range t.Analysis.EdgeTypes {
			types = append(types, name)
		}
		sort.Strings(types)
		for _, name := range types {
			fmt.Fprintf(w, "  %s: %d edge(s)\n", name, t.Analysis.EdgeTypes[name].Count)
		}
	}
}
