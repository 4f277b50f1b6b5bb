package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/tally/internal/app"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/ui/output"
	"go.trai.ch/tally/internal/ui/style"
)

type lookupOutput struct {
	Key       string             `json:"key"`
	Threshold int                `json:"threshold"`
	Pending   bool               `json:"pending"`
	JobID     string             `json:"job_id,omitempty"`
	Entry     *domain.CacheEntry `json:"entry,omitempty"`
}

func (c *CLI) newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <subject>",
		Short: "Show a subject's post count, measuring it when the cache is stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := app.Request{Subject: args[0]}
			req.Channel, _ = cmd.Flags().GetString("channel")
			req.Category, _ = cmd.Flags().GetString("category")
			if cmd.Flags().Changed("months") {
				v, _ := cmd.Flags().GetInt("months")
				req.Months = &v
			}
			if cmd.Flags().Changed("threshold") {
				v, _ := cmd.Flags().GetInt("threshold")
				req.Threshold = &v
			}
			noWait, _ := cmd.Flags().GetBool("no-wait")

			out, err := c.lookup(cmd.Context(), req, noWait)
			if err != nil {
				return err
			}
			if jsonMode(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderLookup(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("channel", "", "Channel slug to search")
	cmd.Flags().String("category", domain.DefaultCategory, "Listing category selecting the window and threshold")
	cmd.Flags().Int("months", 0, "Override the trailing window in months (0 = whole history)")
	cmd.Flags().Int("threshold", 0, "Override the low-activity threshold")
	cmd.Flags().Bool("no-wait", false, "Queue the measurement and return the cached value immediately")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func (c *CLI) lookup(ctx context.Context, req app.Request, noWait bool) (lookupOutput, error) {
	if noWait {
		res, err := c.app.Lookup(ctx, req)
		if err != nil {
			return lookupOutput{}, err
		}
		out := lookupOutput{Key: res.Key.String(), Threshold: res.Threshold, Entry: res.Entry}
		if res.Pending() {
			out.Pending = true
			out.JobID = res.Future.ID()
		}
		return out, nil
	}

	var out lookupOutput
	err := c.app.WithQueue(ctx, func(ctx context.Context) error {
		res, err := c.app.Lookup(ctx, req)
		if err != nil {
			return err
		}
		out = lookupOutput{Key: res.Key.String(), Threshold: res.Threshold, Entry: res.Entry}
		if !res.Pending() {
			return nil
		}
		entry, err := res.Future.Wait(ctx)
		if err != nil {
			return err
		}
		out.Entry = &entry
		return nil
	})
	return out, err
}

func renderLookup(w io.Writer, out lookupOutput) {
	r := output.Renderer(w)
	muted := style.Muted(r)

	if out.Entry == nil {
		_, _ = fmt.Fprintf(w, "%s %s %s\n", style.Clock, out.Key, muted.Render("measurement queued"))
		return
	}

	count := style.CountStyle(r, out.Entry.Count, out.Threshold).Render(out.Entry.Label())
	line := fmt.Sprintf("%s %s  %s", style.Dot, out.Key, count)
	line += muted.Render(fmt.Sprintf("  fetched %s", out.Entry.FetchedAt.Local().Format(time.DateTime)))
	if out.Entry.HasRecheck() {
		line += muted.Render(fmt.Sprintf("  recheck %s", out.Entry.RecheckAt.Local().Format(time.DateTime)))
	}
	if out.Pending {
		line += muted.Render("  (refreshing)")
	}
	_, _ = fmt.Fprintln(w, line)
}
