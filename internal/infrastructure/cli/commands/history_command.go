package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(container *app.Container) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded command history",
	}
	historyCmd.AddCommand(
		newHistoryListCommand(container),
		newHistorySearchCommand(container),
		newHistoryPruneCommand(container),
		newHistoryExportCommand(container),
		newHistoryShellCommand(container),
		newHistoryStatsCommand(container),
	)
	return historyCmd
}

func newHistoryListCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			records, err := st.ListRecentHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Max entries to show")
	return cmd
}

func newHistorySearchCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search history commands and prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			records, err := st.SearchHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", DefaultHistorySearchLimit, "Limit search results")
	return cmd
}

func renderHistory(out io.Writer, records []domain.HistoryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return
	}
	for _, rec := range records {
		status := "ok  "
		if !rec.Success {
			status = "fail"
		}
		fmt.Fprintf(out, "%s | %s | %s", rec.ExecutedAt.Local().Format(TimestampFormat), status, rec.Command)
		if rec.Prompt != "" {
			fmt.Fprintf(out, "  # %s", helpers.Truncate(rec.Prompt, 60))
		}
		fmt.Fprintln(out)
	}
}

func newHistoryPruneCommand(container *app.Container) *cobra.Command {
	var days, maxRecords int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply history retention now",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = container.Config.History.RetentionDays
			}
			if !cmd.Flags().Changed("max") {
				maxRecords = container.Config.History.MaxRecords
			}
			if days < 0 || maxRecords < 0 {
				return fmt.Errorf("--days and --max must be >= 0")
			}
			n, err := st.PruneHistory(cmd.Context(), days, maxRecords)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d history records (keeping %d days, at most %d records; 0 means unbounded).\n", n, days, maxRecords)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Keep records younger than this many days (default from config)")
	cmd.Flags().IntVar(&maxRecords, "max", 0, "Keep at most this many records (default from config)")
	return cmd
}

func newHistoryExportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Export history as JSON lines (stdout when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 1 && args[0] != "-" {
				f, ferr := os.OpenFile(args[0], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, domain.SecureFilePermissions)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			bw := bufio.NewWriter(w)
			n, err := st.ExportHistory(cmd.Context(), bw)
			if err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			if len(args) == 1 && args[0] != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", n, args[0])
			}
			return nil
		},
	}
}

func newHistoryShellCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Show recent shell history as phloem reads it (denylisted lines removed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if container.ShellHistory == nil || len(container.ShellSources) == 0 {
				fmt.Fprintln(out, MsgNoShellHistory)
				return nil
			}
			for _, src := range container.ShellSources {
				fmt.Fprintf(cmd.ErrOrStderr(), "source: %s (%s)\n", src.Path, src.Format)
			}
			shown := 0
			for command := range container.ShellHistory.Commands() {
				fmt.Fprintln(out, command)
				shown++
				if limit > 0 && shown == limit {
					break
				}
			}
			if shown == 0 {
				fmt.Fprintln(out, MsgNoShellHistory)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", DefaultShellListLimit, "Max commands to show")
	return cmd
}

func newHistoryStatsCommand(container *app.Container) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show success rate and the most used executables",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			records, err := st.ListRecentHistory(cmd.Context(), 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, MsgNoHistoryRecorded)
				return nil
			}
			succeeded := 0
			freq := make(map[string]int)
			for _, rec := range records {
				if rec.Success {
					succeeded++
				}
				if exe := domain.ExtractExecutable(rec.Command); exe != "" {
					freq[exe]++
				}
			}
			fmt.Fprintf(out, "Records: %d, succeeded: %d (%s)\n", len(records), succeeded,
				helpers.FormatRate(float64(succeeded)/float64(len(records))))
			fmt.Fprintln(out, "Top executables:")
			for _, stat := range helpers.CalculateTopCommands(freq, top) {
				fmt.Fprintf(out, "  %-16s %d\n", stat.Command, stat.Count)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Number of executables to show")
	return cmd
}
