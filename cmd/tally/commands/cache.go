package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/ui/output"
	"go.trai.ch/tally/internal/ui/style"
	"go.trai.ch/zerr"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain cached counts",
	}
	cmd.AddCommand(c.newCacheListCmd())
	cmd.AddCommand(c.newCachePurgeCmd())
	cmd.AddCommand(c.newCacheExportCmd())
	cmd.AddCommand(c.newCacheImportCmd())
	cmd.AddCommand(c.newCacheBackfillCmd())
	return cmd
}

func (c *CLI) newCacheListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached entries, most recently fetched first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			query, _ := cmd.Flags().GetString("query")
			threshold, _ := cmd.Flags().GetInt("threshold")
			if !cmd.Flags().Changed("threshold") {
				threshold = c.app.Settings().CategoryFor(domain.DefaultCategory).Threshold
			}

			opts := cache.ListOptions{Filter: cache.Filter(filter), Threshold: threshold, Query: query}
			switch opts.Filter {
			case cache.FilterAll, cache.FilterLow, cache.FilterHigh, cache.FilterRecheck:
			default:
				return zerr.With(zerr.New("unknown filter"), "filter", filter)
			}

			listed, err := c.app.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonMode(cmd) {
				return printJSON(cmd.OutOrStdout(), listed)
			}
			renderEntries(cmd.OutOrStdout(), listed, threshold)
			return nil
		},
	}
	cmd.Flags().String("filter", string(cache.FilterAll), "One of all, low, high, recheck")
	cmd.Flags().String("query", "", "Only subjects containing this text")
	cmd.Flags().Int("threshold", 0, "Threshold for the low/high filters (default: the default category's)")
	return cmd
}

func renderEntries(w io.Writer, listed []cache.Listed, threshold int) {
	r := output.Renderer(w)
	if len(listed) == 0 {
		_, _ = fmt.Fprintln(w, style.Muted(r).Render("no cached entries"))
		return
	}

	rows := make([][]string, 0, len(listed))
	for _, l := range listed {
		recheck := "-"
		if l.Entry.HasRecheck() {
			recheck = l.Entry.RecheckAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			l.Key.Subject,
			l.Key.Channel,
			strconv.Itoa(l.Key.Months) + "m",
			l.Entry.Label(),
			l.Entry.FetchedAt.Local().Format(time.DateTime),
			recheck,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(style.Muted(r)).
		Headers("SUBJECT", "CHANNEL", "WINDOW", "COUNT", "FETCHED", "RECHECK").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return style.Header(r).Padding(0, 1)
			case col == 3:
				return style.CountStyle(r, listed[row].Entry.Count, threshold).Padding(0, 1)
			case col >= 4:
				return style.Muted(r).Padding(0, 1)
			default:
				return r.NewStyle().Padding(0, 1)
			}
		})
	_, _ = fmt.Fprintln(w, t.Render())
}

func (c *CLI) newCachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [key]",
		Short: "Remove one entry (cache:<channel>:<months>m:<subject>) or every entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				key, err := domain.ParseCacheKey(args[0])
				if err != nil {
					return err
				}
				if err := c.app.PurgeKey(ctx, key); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s purged %s\n", style.Check, key)
				return nil
			}

			n, err := c.app.PurgeAll(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s purged %d entries\n", style.Check, n)
			return nil
		},
	}
}

func (c *CLI) newCacheExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every entry as JSON to file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return zerr.With(zerr.Wrap(err, "failed to create export file"), "path", args[0])
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			n, err := c.app.Export(cmd.Context(), w)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s exported %d entries to %s\n", style.Check, n, args[0])
			}
			return nil
		},
	}
}

func (c *CLI) newCacheImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Merge entries from a JSON export in file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return zerr.With(zerr.Wrap(err, "failed to open import file"), "path", args[0])
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			n, err := c.app.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d entries\n", style.Check, n)
			return nil
		},
	}
}

func (c *CLI) newCacheBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Schedule rechecks for truncated entries stored without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s scheduled %d rechecks\n", style.Check, n)
			return nil
		},
	}
}
