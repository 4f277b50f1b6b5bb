// Package commands implements the CLI commands for tally.
package commands

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/tally/internal/app"
	"go.trai.ch/tally/internal/build"
	"go.trai.ch/tally/internal/core/ports"
)

// CLI represents the command line interface for tally.
type CLI struct {
	app     *app.App
	log     ports.Logger
	rootCmd *cobra.Command
}

// New creates a new CLI instance over the initialized components.
func New(c *app.Components) *CLI {
	rootCmd := &cobra.Command{
		Use:           "tally",
		Short:         "Count and cache forum post activity per user",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to tally.yaml (default $TALLY_CONFIG or ./tally.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "Print machine-readable JSON")

	cli := &CLI{
		app:     c.App,
		log:     c.Logger,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(cli.newLookupCmd())
	rootCmd.AddCommand(cli.newCacheCmd())
	rootCmd.AddCommand(cli.newLimiterCmd())
	rootCmd.AddCommand(cli.newServeCmd())
	rootCmd.AddCommand(cli.newVersionCmd())

	return cli
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

// ConfigPath scans args for --config/-c ahead of flag parsing. It returns ""
// when the flag is absent.
func ConfigPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		for _, name := range []string{"--config", "-c"} {
			if arg == name && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(arg, name+"="); ok {
				return v
			}
		}
	}
	return ""
}

func jsonMode(cmd *cobra.Command) bool {
	on, _ := cmd.Flags().GetBool("json")
	return on
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
