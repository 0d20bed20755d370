package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/hsm/internal/manifest"
	"github.com/spf13/cobra"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "init NAME",
		Short: "Create a new project manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(opts.projectRoot, manifest.FileName)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			m := manifest.Default(args[0])
			if mode != "" {
				m.Project.Mode = mode
			}
			if err := os.MkdirAll(opts.projectRoot, 0o755); err != nil {
				return err
			}
			if err := m.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Default mode for the project (dev or prod)")
	return cmd
}
