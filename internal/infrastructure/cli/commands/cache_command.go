package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
)

// NewCacheCommand creates the cache command with all subcommands
func NewCacheCommand(container *app.Container) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached suggestions",
	}
	cacheCmd.AddCommand(
		newCacheStatsCommand(container),
		newCacheListCommand(container),
		newCacheClearCommand(container),
		newCachePruneCommand(container),
	)
	return cacheCmd
}

func newCacheStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			policy := container.Config.CachePolicy()
			stats, err := st.Stats(cmd.Context(), policy)
			if err != nil {
				return err
			}
			renderCacheStats(cmd.OutOrStdout(), stats, policy)
			return nil
		},
	}
}

func renderCacheStats(out io.Writer, stats domain.CacheStats, policy domain.CachePolicy) {
	fmt.Fprintf(out, "Suggestions:        %d\n", stats.TotalSuggestions)
	fmt.Fprintf(out, "Served from cache:  %d (at least %d uses, %s success, used within %s)\n",
		stats.EligibleCount, policy.MinUseCount, helpers.FormatRate(policy.MinSuccessRate), policy.MaxAge)
	fmt.Fprintf(out, "High success (>%s): %d\n", helpers.FormatRate(domain.HighSuccessRate), stats.HighSuccessCount)
	fmt.Fprintf(out, "Average success:    %s\n", helpers.FormatRate(stats.AverageSuccess))
	fmt.Fprintf(out, "History records:    %d\n", stats.HistoryCount)
	fmt.Fprintf(out, "Environment facts:  %d\n", stats.EnvironmentFacts)
	fmt.Fprintf(out, "Schema version:     %d\n", stats.SchemaVersion)
	fmt.Fprintf(out, "Database size:      %s\n", humanize.Bytes(uint64(stats.DatabaseSizeBytes)))
}

func newCacheListCommand(container *app.Container) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached suggestions, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			items, err := st.ListSuggestions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, MsgNoSuggestions)
				return nil
			}
			now := time.Now()
			for _, s := range items {
				fmt.Fprintf(out, "%-40s | %-40s | %3d uses | %4s | %s\n",
					helpers.Truncate(s.Prompt, 40),
					helpers.Truncate(s.Command, 40),
					s.UseCount,
					helpers.FormatRate(s.SuccessRate()),
					helpers.FormatAge(s.LastUsed, now))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", DefaultCacheListLimit, "Max entries to show (0 for all)")
	return cmd
}

func newCacheClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached suggestions and history (environment facts are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			if err := st.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

func newCachePruneCommand(container *app.Container) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete suggestions not used within --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be > 0")
			}
			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			n, err := st.PruneSuggestions(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d suggestions older than %d days.\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Age threshold in days")
	return cmd
}
