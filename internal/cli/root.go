// Package cli implements remq, a command-line client for the REM query API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultServer  = "http://localhost:5300"
	defaultTimeout = 30 * time.Second
)

// app holds per-invocation settings resolved from flags, environment
// (REMQ_*) and the optional config file.
type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
}

func (a *app) client() *Client {
	return NewClient(a.v.GetString("server"), a.v.GetString("tenant"), a.v.GetDuration("timeout"))
}

func (a *app) format() (string, error) {
	f := strings.ToLower(a.v.GetString("output"))
	return f, validFormat(f)
}

func (a *app) loadConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".remq"))
		}
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("REMQ")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (a.cfgFile == "" && os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// NewRootCommand builds the remq command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "remq",
		Short: "Query a REM server",
		Long: `remq sends LOOKUP, SEARCH, FUZZY, SELECT and TRAVERSE queries to a REM
server and prints the results.

Settings come from flags, REMQ_* environment variables or
$HOME/.remq/config.yaml, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.remq/config.yaml)")
	flags.String("server", defaultServer, "REM server URL")
	flags.String("tenant", "", "tenant id sent as X-Tenant-ID")
	flags.StringP("output", "o", FormatTable, "output format (table, json, yaml)")
	flags.Duration("timeout", defaultTimeout, "request timeout")
	for _, name := range []string{"server", "tenant", "output", "timeout"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newQueryCmd(a),
		newPlanCmd(a),
		newParseCmd(a),
		newCacheCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs remq with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout).ExecuteContext(ctx)
}
