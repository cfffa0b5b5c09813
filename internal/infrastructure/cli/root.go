// Package cli wires the cobra command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCmd wires the cobra root command. The container is built once flags
// are parsed; the returned func releases it.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, func() error) {
	container := &app.Container{}
	built := false
	var sopts suggestOptions

	root := &cobra.Command{
		Use:   "phloem [prompt...]",
		Short: "Phloem - local shell command suggestions that learn",
		Long: `Phloem turns natural language into shell commands using a local model.
Commands you run successfully are cached and remembered, so repeated
requests are answered instantly and new ones get better context.`,
		Args: cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if built || skipsContainer(cmd) {
				return nil
			}
			c, err := app.BuildContainer(ctx, app.Options{Verbose: opts.Verbose, ConfigPath: opts.ConfigPath})
			if err != nil {
				return err
			}
			*container = *c
			built = true
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSuggest(cmd, container, args, sopts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Config file path (default $PHLOEM_CONFIG or ~/.phloem/config.yaml)")
	bindSuggestFlags(root, &sopts)

	root.AddCommand(
		newSuggestCommand(container),
		commands.NewRecordCommand(container),
		commands.NewInitCommand(container),
		commands.NewCacheCommand(container),
		commands.NewKnowledgeCommand(container),
		commands.NewHistoryCommand(container),
		commands.NewEnvCommand(container),
		commands.NewDoctorCommand(container),
		commands.NewConfigCommand(container),
		commands.NewVersionCommand(),
	)

	closer := func() error {
		if !built {
			return nil
		}
		return container.Close()
	}
	return root, closer
}

func skipsContainer(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	}
	return cmd.Parent() != nil && cmd.Parent().Name() == "completion"
}
