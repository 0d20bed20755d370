// File: internal/registry/crud.go
// Brief: Filesystem CRUD for registry definitions.

package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnsureLayout creates the registry directory skeleton.
func EnsureLayout(root string) error {
	for _, dir := range registryDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// WriteComponent persists a component definition into the registry,
// overwriting any existing definition with the same name.
func WriteComponent(root string, c *Component) error {
	if c.Name == "" {
		return fmt.Errorf("component name is required")
	}
	dir := DirLibraries
	if c.Kind == KindService {
		dir = DirServices
	}
	return writeYAML(filepath.Join(root, dir, c.Name+".yaml"), c)
}

// WriteGroup persists a group definition into the registry.
func WriteGroup(root string, g *Group) error {
	if g.Name == "" {
		return fmt.Errorf("group name is required")
	}
	dir := DirLibraryGroups
	if g.Kind == GroupKindService {
		dir = DirServiceGroups
	}
	return writeYAML(filepath.Join(root, dir, g.Name+".yaml"), g)
}

// Remove deletes a component or group definition from the registry. It
// checks every category so callers do not need to know the kind.
func Remove(root, name string) error {
	removed := false
	for _, dir := range registryDirs {
		path := filepath.Join(root, dir, name+".yaml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed = true
	}
	if !removed {
		return fmt.Errorf("component %q not found in registry", name)
	}
	return nil
}

// AddGroupOption appends an option to an existing group definition.
func AddGroupOption(root, group, option string) error {
	return editGroup(root, group, func(g *Group) error {
		if _, ok := g.Option(option); ok {
			return nil
		}
		g.Options = append(g.Options, GroupOption{Name: option})
		return nil
	})
}

// RemoveGroupOption drops an option from an existing group definition.
func RemoveGroupOption(root, group, option string) error {
	return editGroup(root, group, func(g *Group) error {
		kept := g.Options[:0]
		for _, opt := range g.Options {
			if opt.Name != option {
				kept = append(kept, opt)
			}
		}
		g.Options = kept
		return nil
	})
}

// Details returns the raw YAML of a definition, looked up across every
// category, or an error when no definition matches.
func Details(root, name string) ([]byte, error) {
	for _, dir := range registryDirs {
		path := filepath.Join(root, dir, name+".yaml")
		if raw, err := os.ReadFile(path); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("component %q not found in registry", name)
}

func editGroup(root, name string, edit func(*Group) error) error {
	for _, dir := range []string{DirLibraryGroups, DirServiceGroups} {
		path := filepath.Join(root, dir, name+".yaml")
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var g Group
		if err := yaml.Unmarshal(raw, &g); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if g.Name == "" {
			g.Name = name
		}
		if err := edit(&g); err != nil {
			return err
		}
		return writeYAML(path, &g)
	}
	return fmt.Errorf("group %q not found in registry", name)
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
