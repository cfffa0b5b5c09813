package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/phloem-sh/phloem/internal/app"
	"github.com/phloem-sh/phloem/internal/infrastructure/cli/helpers"
	"github.com/phloem-sh/phloem/internal/ports"
)

// NewKnowledgeCommand exposes the learned knowledge document.
func NewKnowledgeCommand(container *app.Container) *cobra.Command {
	knowledgeCmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect the learned knowledge document",
	}
	knowledgeCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the knowledge document",
			RunE: func(cmd *cobra.Command, args []string) error {
				km, err := knowledgeManager(container)
				if err != nil {
					return err
				}
				text, err := km.Read(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the knowledge document location",
			RunE: func(cmd *cobra.Command, args []string) error {
				km, err := knowledgeManager(container)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), km.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Reset the document (the previous version is kept as a backup)",
			RunE: func(cmd *cobra.Command, args []string) error {
				km, err := knowledgeManager(container)
				if err != nil {
					return err
				}
				if err := km.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Knowledge cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "backups",
			Short: "List knowledge backups, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				km, err := knowledgeManager(container)
				if err != nil {
					return err
				}
				paths, err := km.Backups()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(paths) == 0 {
					fmt.Fprintln(out, MsgNoBackups)
					return nil
				}
				for _, p := range paths {
					size := "?"
					if info, err := os.Stat(p); err == nil {
						size = humanize.Bytes(uint64(info.Size()))
					}
					fmt.Fprintf(out, "%s  %s\n", filepath.Base(p), size)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "note <category> <note...>",
			Short:   "Add a preference note to a category section",
			Example: `  phloem knowledge note git "prefer --rebase when pulling"`,
			Args:    cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				km, err := knowledgeManager(container)
				if err != nil {
					return err
				}
				category, err := helpers.ParseCategory(args[0])
				if err != nil {
					return err
				}
				note := strings.Join(args[1:], " ")
				if err := km.AddNote(cmd.Context(), category, note); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Noted under %s.\n", category)
				return nil
			},
		},
	)
	return knowledgeCmd
}

func knowledgeManager(container *app.Container) (ports.KnowledgeManager, error) {
	if container.Knowledge == nil {
		return nil, errors.New(ErrKnowledgeUnavailable)
	}
	return container.Knowledge, nil
}
