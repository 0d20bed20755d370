package main

import (
	"path/filepath"

	"github.com/example/hsm/internal/adapter"
	"github.com/example/hsm/internal/manifest"
	"github.com/spf13/cobra"
)

func newServiceCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Start and stop the project's managed services",
	}

	containerAdapter := func() (adapter.ContainerAdapter, error) {
		m, err := manifest.Load(filepath.Join(opts.projectRoot, manifest.FileName))
		if err != nil {
			return nil, err
		}
		engine := m.Project.ContainerEngine
		if engine == "" {
			engine = "docker"
		}
		log, err := opts.logger()
		if err != nil {
			return nil, err
		}
		return adapter.NewContainer(engine, adapter.Options{
			ProjectRoot: opts.projectRoot,
			Logger:      log,
		})
	}

	up := &cobra.Command{
		Use:   "up [SERVICE...]",
		Short: "Start services from the generated compose file",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := containerAdapter()
			if err != nil {
				return err
			}
			return engine.Up(cmd.Context(), args)
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the project's services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := containerAdapter()
			if err != nil {
				return err
			}
			return engine.Down(cmd.Context())
		},
	}
	cmd.AddCommand(up, down)
	return cmd
}
