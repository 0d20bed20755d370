package main

import (
	"fmt"

	"github.com/example/hsm/internal/syncer"
	"github.com/fatih/color"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

func newSyncCommand(opts *globalOptions) *cobra.Command {
	var frozen bool
	var uvArgs string
	var noState bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Resolve the manifest and materialize the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			vars, err := opts.vars(cmd.Context())
			if err != nil {
				return err
			}
			extraArgs, err := shellwords.Parse(uvArgs)
			if err != nil {
				return fmt.Errorf("parse --uv-args: %w", err)
			}

			s := syncer.New(syncer.Options{
				ProjectRoot:  opts.projectRoot,
				RegistryRoot: opts.registryRoot,
				Logger:       log,
				Vars:         vars,
				Frozen:       frozen,
				SkipState:    noState,
				PackageArgs:  extraArgs,
			})
			res, err := s.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen, color.Bold).Fprintln(out, "Environment synced")
			fmt.Fprintf(out, "  libraries: %d\n", len(res.Plan.Libraries))
			fmt.Fprintf(out, "  services:  %d (%d managed)\n", len(res.Plan.Services), len(res.Plan.ManagedServices()))
			for _, name := range sortedMergedNames(res.Plan) {
				fmt.Fprintf(out, "  merged %s <- %v\n", name, res.Plan.Merged[name].Contributors)
			}
			if res.ComposePath != "" {
				fmt.Fprintf(out, "  services file: %s\n", res.ComposePath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&frozen, "frozen", false, "Do not update the lock file")
	cmd.Flags().StringVar(&uvArgs, "uv-args", "", "Extra arguments passed through to uv (quoted shell syntax)")
	cmd.Flags().BoolVar(&noState, "no-state", false, "Skip recording the run in the project history")
	return cmd
}
