package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
)

// NewEnvCommand shows and refreshes the stored environment facts.
func NewEnvCommand(container *app.Container) *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show or refresh detected environment facts",
	}
	envCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show stored environment facts",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := container.RequireStore()
				if err != nil {
					return err
				}
				facts, err := st.EnvironmentFacts(cmd.Context())
				if err != nil {
					return err
				}
				renderFacts(cmd.OutOrStdout(), facts)
				return nil
			},
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Detect environment facts again and store them",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := container.RequireStore()
				if err != nil {
					return err
				}
				facts, err := container.Detector.Detect(cmd.Context())
				if err != nil {
					return err
				}
				if err := st.UpsertEnvironmentFacts(cmd.Context(), facts); err != nil {
					return err
				}
				stored, err := st.EnvironmentFacts(cmd.Context())
				if err != nil {
					return err
				}
				renderFacts(cmd.OutOrStdout(), stored)
				return nil
			},
		},
	)
	return envCmd
}

func renderFacts(out io.Writer, facts []domain.EnvironmentFact) {
	if len(facts) == 0 {
		fmt.Fprintln(out, MsgNoEnvironmentFacts)
		return
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })
	now := time.Now()
	for _, f := range facts {
		fmt.Fprintf(out, "%-20s %s  (updated %s)\n", f.Key, helpers.Truncate(f.Value, 80), helpers.FormatAge(f.UpdatedAt, now))
	}
}
