package commands

import (
	"context"
	"io"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.trai.ch/tally/internal/adapters/config"
	"go.trai.ch/tally/internal/adapters/detector"
	"go.trai.ch/tally/internal/adapters/httpapi"
	"go.trai.ch/tally/internal/adapters/tui"
	"golang.org/x/sync/errgroup"
)

type outputSetter interface {
	SetOutput(w io.Writer)
}

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fetch queue and the HTTP API, reloading tally.yaml on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			handler := httpapi.NewRouter(c.app, c.log)
			path := config.PathFrom(ctx)

			dashboard, _ := cmd.Flags().GetBool("dashboard")
			output, _ := cmd.Flags().GetString("output")
			if !dashboardMode(dashboard, cmd.OutOrStdout(), output) {
				if dashboard {
					c.log.Warn("dashboard needs an interactive terminal, logging instead")
				}
				return c.app.Serve(ctx, handler, path)
			}
			return c.serveWithDashboard(ctx, cmd, handler, path)
		},
	}
	cmd.Flags().BoolP("dashboard", "d", false, "Show a live view of the queue and limiter (logs are hidden)")
	cmd.Flags().String("output", "auto", "Dashboard output mode: auto, dashboard or plain")
	return cmd
}

// dashboardMode reports whether the dashboard was requested and out can host it.
func dashboardMode(requested bool, out io.Writer, output string) bool {
	if !requested {
		return false
	}
	return detector.ResolveMode(detector.DetectEnvironment(out), output) == detector.ModeDashboard
}

func (c *CLI) serveWithDashboard(ctx context.Context, cmd *cobra.Command, handler http.Handler, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s, ok := c.log.(outputSetter); ok {
		s.SetOutput(io.Discard)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.app.Serve(ctx, handler, path)
	})
	g.Go(func() error {
		defer cancel()
		p := tea.NewProgram(
			tui.NewModel(ctx, c.app, tui.DefaultInterval),
			tea.WithContext(ctx),
			tea.WithAltScreen(),
			tea.WithOutput(cmd.OutOrStdout()),
		)
		_, err := p.Run()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return g.Wait()
}
