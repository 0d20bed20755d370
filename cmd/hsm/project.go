package main

import (
	"fmt"
	"path/filepath"

	"github.com/example/hsm/internal/manifest"
	"github.com/example/hsm/internal/registry"
	"github.com/spf13/cobra"
)

func newProjectCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Edit the project manifest",
	}
	cmd.AddCommand(
		newProjectAddCommand(opts, "add-lib", "library"),
		newProjectAddCommand(opts, "add-service", "service"),
		newProjectRemoveCommand(opts, "remove-lib", "library"),
		newProjectRemoveCommand(opts, "remove-service", "service"),
		newProjectUseGroupCommand(opts),
		newProjectDropGroupCommand(opts),
		newProjectSetModeCommand(opts),
	)
	return cmd
}

// editManifest loads hsm.yaml, applies edit, and saves it back.
func editManifest(opts *globalOptions, edit func(*manifest.Manifest) error) error {
	path := filepath.Join(opts.projectRoot, manifest.FileName)
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if err := edit(m); err != nil {
		return err
	}
	return m.Save(path)
}

// loadRegistry opens the registry named by the flags or environment,
// so manifest edits can be validated against the definitions.
func loadRegistry(opts *globalOptions) (*registry.Store, error) {
	root := opts.registryRoot
	if root == "" {
		root = registryRootFromEnv()
	}
	return registry.Load(root)
}

func newProjectAddCommand(opts *globalOptions, use, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: fmt.Sprintf("Add a %s to the manifest", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			reg, err := loadRegistry(opts)
			if err != nil {
				return err
			}
			comp, ok := reg.Component(name)
			if !ok {
				return fmt.Errorf("component %q is not in the registry", name)
			}
			if string(comp.Kind) != kind {
				return fmt.Errorf("component %q is a %s, not a %s", name, comp.Kind, kind)
			}
			return editManifest(opts, func(m *manifest.Manifest) error {
				if kind == "library" {
					m.AddLibrary(name)
				} else {
					m.AddService(name)
				}
				return nil
			})
		},
	}
}

func newProjectRemoveCommand(opts *globalOptions, use, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: fmt.Sprintf("Remove a %s from the manifest", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editManifest(opts, func(m *manifest.Manifest) error {
				if kind == "library" {
					m.RemoveLibrary(args[0])
				} else {
					m.RemoveService(args[0])
				}
				return nil
			})
		},
	}
}

func newProjectUseGroupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use-group GROUP [OPTION...]",
		Short: "Select options from a registry group (no options keeps the group default)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := args[0]
			selection := args[1:]
			reg, err := loadRegistry(opts)
			if err != nil {
				return err
			}
			g, ok := reg.Group(group)
			if !ok {
				return fmt.Errorf("group %q is not in the registry", group)
			}
			for _, name := range selection {
				if _, ok := g.Option(name); !ok {
					return fmt.Errorf("group %q has no option %q", group, name)
				}
			}
			return editManifest(opts, func(m *manifest.Manifest) error {
				if g.Kind == registry.GroupKindLibrary {
					m.SetLibraryGroup(group, selection)
				} else {
					m.SetServiceGroup(group, selection)
				}
				return nil
			})
		},
	}
}

func newProjectDropGroupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop-group GROUP",
		Short: "Remove a group selection from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editManifest(opts, func(m *manifest.Manifest) error {
				m.RemoveGroup(args[0])
				return nil
			})
		},
	}
}

func newProjectSetModeCommand(opts *globalOptions) *cobra.Command {
	var projectWide bool
	cmd := &cobra.Command{
		Use:   "set-mode [COMPONENT] MODE",
		Short: "Override the dev/prod mode for a component, or set the project default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectWide != (len(args) == 1) {
				return fmt.Errorf("pass MODE alone with --project-wide, or COMPONENT MODE without it")
			}
			mode := args[len(args)-1]
			if mode != string(registry.ModeDev) && mode != string(registry.ModeProd) {
				return fmt.Errorf("mode must be dev or prod, got %q", mode)
			}
			return editManifest(opts, func(m *manifest.Manifest) error {
				if projectWide {
					m.Project.Mode = mode
					return nil
				}
				m.SetMode(args[0], mode)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&projectWide, "project-wide", false, "Set the default mode for the whole project")
	return cmd
}
