package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/hsm/internal/adapter/composegen"
	"github.com/example/hsm/internal/inspect"
	"github.com/example/hsm/internal/state"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var live bool
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent sync runs and, optionally, live container state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			store, err := state.Open(opts.projectRoot, true)
			switch {
			case err == nil:
				defer store.Close()
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No sync runs recorded yet")
				}
				for _, run := range runs {
					printRun(cmd, run)
				}
			case os.IsNotExist(err):
				fmt.Fprintln(out, "No sync history (project never synced)")
			default:
				return err
			}

			if !live {
				return nil
			}
			inspector := inspect.New(opts.projectRoot)
			composeFile := filepath.Join(opts.projectRoot, composegen.FileName)
			containers, err := inspector.Containers(cmd.Context(), composeFile)
			if err != nil {
				return err
			}
			if len(containers) == 0 {
				fmt.Fprintln(out, "No containers")
				return nil
			}
			for _, c := range containers {
				fmt.Fprintf(out, "  %-20s %-10s %s\n", c.Service, c.State, c.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Also query docker compose for container state")
	cmd.Flags().IntVar(&limit, "limit", 10, "How many runs to show")
	return cmd
}

func printRun(cmd *cobra.Command, run *state.Run) {
	out := cmd.OutOrStdout()
	statusColor := color.New(color.FgGreen)
	switch run.Status {
	case state.StatusFailed:
		statusColor = color.New(color.FgRed)
	case state.StatusRunning:
		statusColor = color.New(color.FgYellow)
	}
	fmt.Fprintf(out, "%s  %s  mode=%s  libs=%d svcs=%d  %s\n",
		run.StartedAt.Format(time.RFC3339),
		statusColor.Sprint(run.Status),
		run.Mode, run.Libraries, run.Services, run.ID)
	if run.Error != "" {
		fmt.Fprintf(out, "    error: %s\n", run.Error)
	}
}
