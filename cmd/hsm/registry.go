package main

import (
	"fmt"
	"strings"

	"github.com/example/hsm/internal/registry"
	"github.com/spf13/cobra"
)

func newRegistryCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the shared component registry",
	}
	cmd.AddCommand(
		newRegistryInitCommand(opts),
		newRegistryAddLibCommand(opts),
		newRegistryAddServiceCommand(opts),
		newRegistryAddGroupCommand(opts),
		newRegistryRemoveCommand(opts),
		newRegistrySearchCommand(opts),
		newRegistryShowCommand(opts),
		newRegistryGroupCommand(opts),
	)
	return cmd
}

func registryRoot(opts *globalOptions) (string, error) {
	root := opts.registryRoot
	if root == "" {
		root = registryRootFromEnv()
	}
	if root == "" {
		return "", fmt.Errorf("no registry configured; pass --registry or set HSM_REGISTRY")
	}
	return root, nil
}

func newRegistryInitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the registry directory layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			return registry.EnsureLayout(root)
		},
	}
}

func newRegistryAddLibCommand(opts *globalOptions) *cobra.Command {
	var (
		pypi        string
		gitURL      string
		gitRef      string
		devPath     string
		description string
		implies     []string
	)
	cmd := &cobra.Command{
		Use:   "add-lib NAME",
		Short: "Define a library in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			c := &registry.Component{
				Name:        args[0],
				Kind:        registry.KindLibrary,
				Description: description,
			}
			switch {
			case pypi != "":
				c.Sources.Prod = &registry.Source{Type: "pypi", Version: pypi}
			case gitURL != "":
				c.Sources.Prod = &registry.Source{Type: "git", URL: gitURL, Ref: gitRef}
			default:
				return fmt.Errorf("a prod source is required; pass --pypi or --git")
			}
			if devPath != "" {
				c.Sources.Dev = &registry.Source{Type: "local", Path: devPath, Editable: true}
			}
			for _, target := range implies {
				c.Implies = append(c.Implies, registry.Edge{Target: target})
			}
			if err := registry.WriteComponent(root, c); err != nil {
				return err
			}
			return verifyRegistry(root)
		},
	}
	cmd.Flags().StringVar(&pypi, "pypi", "", "PyPI version constraint for the prod source (e.g. '>=2.31')")
	cmd.Flags().StringVar(&gitURL, "git", "", "Git URL for the prod source")
	cmd.Flags().StringVar(&gitRef, "ref", "", "Git ref for --git")
	cmd.Flags().StringVar(&devPath, "dev-path", "", "Local checkout used as the dev source")
	cmd.Flags().StringVar(&description, "description", "", "One-line description")
	cmd.Flags().StringSliceVar(&implies, "implies", nil, "Services this library requires (edit the YAML to add edge parameters)")
	return cmd
}

func newRegistryAddServiceCommand(opts *globalOptions) *cobra.Command {
	var (
		image       string
		devImage    string
		ports       []string
		volumes     []string
		aliases     []string
		env         []string
		description string
	)
	cmd := &cobra.Command{
		Use:   "add-service NAME",
		Short: "Define a service in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			if image == "" {
				return fmt.Errorf("--image is required")
			}
			envMap, err := parseEnvPairs(env)
			if err != nil {
				return err
			}
			c := &registry.Component{
				Name:           args[0],
				Kind:           registry.KindService,
				Description:    description,
				Ports:          ports,
				Volumes:        volumes,
				NetworkAliases: aliases,
				Env:            envMap,
			}
			c.Sources.Prod = &registry.Source{Type: "docker-image", Image: image}
			if devImage != "" {
				c.Sources.Dev = &registry.Source{Type: "docker-image", Image: devImage}
			}
			if err := registry.WriteComponent(root, c); err != nil {
				return err
			}
			return verifyRegistry(root)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Container image for the prod source")
	cmd.Flags().StringVar(&devImage, "dev-image", "", "Container image for the dev source")
	cmd.Flags().StringSliceVar(&ports, "port", nil, "Port mapping (host:container), repeatable")
	cmd.Flags().StringSliceVar(&volumes, "volume", nil, "Volume mapping, repeatable")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "Network alias, repeatable")
	cmd.Flags().StringSliceVar(&env, "env", nil, "Environment entry KEY=VALUE, repeatable")
	cmd.Flags().StringVar(&description, "description", "", "One-line description")
	return cmd
}

func newRegistryAddGroupCommand(opts *globalOptions) *cobra.Command {
	var (
		kind        string
		strategy    string
		options     []string
		defaults    []string
		description string
	)
	cmd := &cobra.Command{
		Use:   "add-group NAME",
		Short: "Define a selection group in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			g := &registry.Group{
				Name:        args[0],
				Strategy:    registry.Strategy(strategy),
				Default:     defaults,
				Description: description,
			}
			switch kind {
			case "library":
				g.Kind = registry.GroupKindLibrary
			case "service":
				g.Kind = registry.GroupKindService
			default:
				return fmt.Errorf("--kind must be library or service, got %q", kind)
			}
			for _, name := range options {
				g.Options = append(g.Options, registry.GroupOption{Name: name})
			}
			if err := registry.WriteGroup(root, g); err != nil {
				return err
			}
			return verifyRegistry(root)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "library", "Group kind: library or service")
	cmd.Flags().StringVar(&strategy, "strategy", string(registry.StrategySingle), "Selection strategy: 1-of-N or M-of-N")
	cmd.Flags().StringSliceVar(&options, "option", nil, "Component option, repeatable")
	cmd.Flags().StringSliceVar(&defaults, "default", nil, "Default selection, repeatable")
	cmd.Flags().StringVar(&description, "description", "", "One-line description")
	return cmd
}

func newRegistryRemoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Delete a component or group definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			return registry.Remove(root, args[0])
		},
	}
}

func newRegistrySearchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search component and group names and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			store, err := registry.Load(root)
			if err != nil {
				return err
			}
			components, groups := store.Search(args[0])
			out := cmd.OutOrStdout()
			for _, name := range components {
				c, _ := store.Component(name)
				fmt.Fprintf(out, "%-10s %-24s %s\n", c.Kind, name, c.Description)
			}
			for _, name := range groups {
				g, _ := store.Group(name)
				fmt.Fprintf(out, "%-10s %-24s %s\n", "group", name, g.Description)
			}
			if len(components) == 0 && len(groups) == 0 {
				fmt.Fprintln(out, "No matches")
			}
			return nil
		},
	}
}

func newRegistryShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a definition as stored in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			raw, err := registry.Details(root, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}

func newRegistryGroupCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Edit group membership",
	}
	addOption := &cobra.Command{
		Use:   "add-option GROUP OPTION",
		Short: "Add a component option to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			if err := registry.AddGroupOption(root, args[0], args[1]); err != nil {
				return err
			}
			return verifyRegistry(root)
		},
	}
	removeOption := &cobra.Command{
		Use:   "remove-option GROUP OPTION",
		Short: "Remove a component option from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := registryRoot(opts)
			if err != nil {
				return err
			}
			return registry.RemoveGroupOption(root, args[0], args[1])
		},
	}
	cmd.AddCommand(addOption, removeOption)
	return cmd
}

// verifyRegistry reloads the registry after a write so a bad edit is
// reported immediately rather than at the next sync.
func verifyRegistry(root string) error {
	_, err := registry.Load(root)
	return err
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env entry %q (expected KEY=VALUE)", pair)
		}
		out[key] = value
	}
	return out, nil
}
