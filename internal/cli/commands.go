package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Healer-AI/p8fs-sub000/internal/version"
)

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <query>",
		Short: "Execute a REM query string",
		Long: `Execute a REM query string on the server.

Examples:
  remq query LOOKUP sarah chen
  remq query 'SEARCH "database performance" IN moments'
  remq query 'TRAVERSE reports-to WITH LOOKUP sarah chen DEPTH 2'
  remq query -o json "SELECT * FROM resources WHERE category = 'person' LIMIT 5"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			res, err := a.client().Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeResult(a.out, format, res)
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Execute a structured query plan from a JSON or YAML file",
		Long: `Execute a structured query plan. The file holds query_type and
parameters, in JSON or YAML; "-" reads standard input.

Example plan.yaml:
  query_type: traverse
  parameters:
    initial_query_type: lookup
    initial_query: sarah chen
    edge_types: [reports-to]
    max_depth: 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			body, err := planJSON(data)
			if err != nil {
				return err
			}
			res, err := a.client().ExecutePlan(cmd.Context(), body)
			if err != nil {
				return err
			}
			return writeResult(a.out, format, res)
		},
	}
}

// planJSON accepts a plan in JSON or YAML and returns it as JSON.
func planJSON(data []byte) ([]byte, error) {
	if json.Valid(data) {
		return data, nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("plan is neither JSON nor YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("plan is empty")
	}
	return json.Marshal(doc)
}

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <query>",
		Short: "Show the plan for a query without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			res, err := a.client().Parse(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if format == FormatTable {
				format = FormatYAML
			}
			return writeStructured(a.out, format, res.Plan)
		},
	}
}

func newCacheCmd(a *app) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the server's table metadata cache",
	}

	cache.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			stats, err := a.client().CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			if format != FormatTable {
				return writeStructured(a.out, format, stats)
			}
			fmt.Fprintf(a.out, "total entries:    %d\n", stats.TotalEntries)
			fmt.Fprintf(a.out, "table ids:        %d\n", stats.TableIDs)
			fmt.Fprintf(a.out, "primary keys:     %d\n", stats.PKInfo)
			fmt.Fprintf(a.out, "existence checks: %d\n", stats.ExistenceChecks)
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "clear [table]",
		Short: "Clear cached metadata for one table or all tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := ""
			if len(args) == 1 {
				table = args[0]
			}
			cleared, err := a.client().ClearCache(cmd.Context(), table)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "cleared: %s\n", cleared)
			return nil
		},
	})

	return cache
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the remq version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "remq %s\n", version.Info())
			return nil
		},
	}
}
