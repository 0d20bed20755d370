package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/example/hsm/internal/resolve"
	"github.com/example/hsm/internal/syncer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCommand(opts *globalOptions) *cobra.Command {
	var showVars bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve the manifest and report drift without changing anything",
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
			s := syncer.New(syncer.Options{
				ProjectRoot:  opts.projectRoot,
				RegistryRoot: opts.registryRoot,
				Logger:       log,
				Vars:         vars,
			})
			diff, plan, err := s.Drift()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printPlan(out, plan)
			if showVars {
				for _, entry := range vars.Audit() {
					fmt.Fprintf(out, "  var %s <- %s\n", entry.Variable, entry.Provider)
				}
			}
			if diff == "" {
				color.New(color.FgGreen).Fprintln(out, "No drift: services file matches the plan")
				return nil
			}
			color.New(color.FgYellow, color.Bold).Fprintln(out, "Drift detected:")
			fmt.Fprint(out, diff)
			return fmt.Errorf("services file does not match the plan; run 'hsm sync'")
		},
	}
	cmd.Flags().BoolVar(&showVars, "show-vars", false, "List which provider supplied each resolved variable")
	return cmd
}

func printPlan(out io.Writer, plan *resolve.Plan) {
	fmt.Fprintf(out, "Plan: %d libraries, %d services\n", len(plan.Libraries), len(plan.Services))
	for _, c := range plan.Libraries {
		fmt.Fprintf(out, "  lib %s (%s, %s)\n", c.Name, c.Mode, c.Source.Type)
	}
	for _, c := range plan.Services {
		profile := c.Profile
		if profile == "" {
			profile = "managed"
		}
		suffix := ""
		if c.External {
			suffix = " [external]"
		}
		fmt.Fprintf(out, "  svc %s (%s, profile %s)%s\n", c.Name, c.Mode, profile, suffix)
	}
	for _, name := range sortedMergedNames(plan) {
		merged := plan.Merged[name]
		fmt.Fprintf(out, "  merged %s <- %v\n", name, merged.Contributors)
	}
}

func sortedMergedNames(plan *resolve.Plan) []string {
	names := make([]string, 0, len(plan.Merged))
	for name := range plan.Merged {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
