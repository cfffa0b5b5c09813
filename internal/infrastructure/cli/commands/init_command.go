package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/domain"
)

// NewInitCommand prepares the data directory, seeds the knowledge document,
// records environment facts and checks the generator.
func NewInitCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize phloem data and detect the environment",
		Long: `Create ~/.phloem with the default configuration, the suggestion
database and an empty knowledge document, then detect facts about this
machine and check that Ollama is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cfg := container.Config

			if err := os.MkdirAll(filepath.Join(cfg.DataDir, domain.CacheDirName), domain.DirectoryPermissions); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "Config:         %s\n", container.ConfigLoader.Path())

			st, err := container.RequireStore()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Database:       %s\n", st.Path())

			if _, err := os.Stat(container.Knowledge.Path()); os.IsNotExist(err) {
				if _, err := container.Knowledge.Save(ctx, domain.NewDocument()); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Knowledge:      %s\n", container.Knowledge.Path())

			facts, err := container.Detector.Detect(ctx)
			if err != nil {
				return fmt.Errorf("detect environment: %w", err)
			}
			if err := st.UpsertEnvironmentFacts(ctx, facts); err != nil {
				return err
			}
			fmt.Fprintf(out, "Environment:    %d facts detected\n", len(facts))

			version, err := container.Generator.Version(ctx)
			if err != nil {
				fmt.Fprintf(out, "Ollama:         not reachable at %s (%v)\n", cfg.Generator.Endpoint, err)
				fmt.Fprintln(out, "Start it with `ollama serve` and pull the model with `ollama pull "+cfg.Generator.Model+"`.")
				return nil
			}
			fmt.Fprintf(out, "Ollama:         %s, model %s\n", version, cfg.Generator.Model)
			return nil
		},
	}
}
