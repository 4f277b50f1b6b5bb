package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/tally/internal/app"
	"go.trai.ch/tally/internal/ui/output"
	"go.trai.ch/tally/internal/ui/style"
)

func (c *CLI) newLimiterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limiter",
		Short: "Inspect and control request pacing",
	}
	cmd.AddCommand(c.newLimiterStatusCmd())
	cmd.AddCommand(c.newLimiterResumeCmd())
	cmd.AddCommand(c.newLimiterSetCmd())
	return cmd
}

func (c *CLI) newLimiterStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cooldown, pacing parameters and challenge state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.app.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonMode(cmd) {
				return printJSON(cmd.OutOrStdout(), status)
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func renderStatus(w io.Writer, s app.Status) {
	r := output.Renderer(w)
	label := style.Muted(r).Width(16)
	line := func(name, value string) {
		_, _ = fmt.Fprintln(w, label.Render(name)+value)
	}

	if s.Limiter.Remaining > 0 {
		line("dispatch", r.NewStyle().Foreground(style.Yellow).Render(
			fmt.Sprintf("%s paused for %s", style.Clock, s.Limiter.Remaining.Round(time.Second))))
	} else {
		line("dispatch", r.NewStyle().Foreground(style.Green).Render(style.Check+" ready"))
	}
	line("min spacing", s.Limiter.Params.MinSpacing.String())
	line("abuse pause", s.Limiter.Params.AbusePause.String())
	line("challenge pause", s.Limiter.Params.ChallengePause.String())

	if s.Challenge.Active() {
		line("challenge", r.NewStyle().Foreground(style.Red).Render(
			fmt.Sprintf("%s %s until %s", style.Warning, s.Challenge.Subject, s.Challenge.Deadline.Local().Format(time.TimeOnly))))
	} else {
		line("challenge", style.Muted(r).Render("none"))
	}
	line("entries", fmt.Sprint(s.Entries))
}

func (c *CLI) newLimiterResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "End the current cooldown immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.ForceResume(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s dispatch resumed\n", style.Check)
			return nil
		},
	}
}

func (c *CLI) newLimiterSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store pacing parameters shared by every process on this store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			status, err := c.app.Status(ctx)
			if err != nil {
				return err
			}

			p := status.Limiter.Params
			for name, dst := range map[string]*time.Duration{
				"min-spacing":     &p.MinSpacing,
				"abuse-pause":     &p.AbusePause,
				"challenge-pause": &p.ChallengePause,
			} {
				if cmd.Flags().Changed(name) {
					*dst, _ = cmd.Flags().GetDuration(name)
				}
			}

			if err := c.app.SetRateLimitParameters(ctx, p); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s spacing %s, abuse pause %s, challenge pause %s\n",
				style.Check, p.MinSpacing, p.AbusePause, p.ChallengePause)
			return nil
		},
	}
	cmd.Flags().Duration("min-spacing", 0, "Minimum gap between measurements")
	cmd.Flags().Duration("abuse-pause", 0, "Cooldown after a rate-limit response")
	cmd.Flags().Duration("challenge-pause", 0, "Cooldown after a verification timeout")
	return cmd
}
