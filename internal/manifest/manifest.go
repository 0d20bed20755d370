// File: internal/manifest/manifest.go
// Brief: hsm.yaml project manifest model and load/save.

// Package manifest models the project's declared intent: which
// components and groups are selected, with what mode and profile
// overrides. It deliberately carries no registry knowledge; the
// resolver validates references against the registry store.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const FileName = "hsm.yaml"

// Entry is a reference to a standalone component, optionally carrying a
// mode or profile override. In YAML it is either a bare string or a
// mapping with name/mode/profile keys.
type Entry struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

// UnmarshalYAML accepts both the scalar and mapping forms.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Name = node.Value
		return nil
	}
	type plain Entry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("manifest entry is missing a name")
	}
	*e = Entry(p)
	return nil
}

// MarshalYAML emits the compact scalar form when no overrides are set.
func (e Entry) MarshalYAML() (any, error) {
	if e.Mode == "" && e.Profile == "" {
		return e.Name, nil
	}
	type plain Entry
	return plain(e), nil
}

// GroupSelection is the manifest-side configuration of a registry
// group: the chosen option(s) plus optional overrides applying to every
// selected option.
type GroupSelection struct {
	Selection []string `yaml:"selection"`
	Mode      string   `yaml:"mode,omitempty"`
	Profile   string   `yaml:"profile,omitempty"`
}

// UnmarshalYAML accepts a scalar selection as shorthand for a
// single-element list.
func (g *GroupSelection) UnmarshalYAML(node *yaml.Node) error {
	type plain struct {
		Selection yaml.Node `yaml:"selection"`
		Mode      string    `yaml:"mode,omitempty"`
		Profile   string    `yaml:"profile,omitempty"`
	}
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	g.Mode = p.Mode
	g.Profile = p.Profile
	switch p.Selection.Kind {
	case 0:
		g.Selection = nil
	case yaml.ScalarNode:
		if p.Selection.Tag == "!!null" {
			g.Selection = nil
			return nil
		}
		g.Selection = []string{p.Selection.Value}
	case yaml.SequenceNode:
		return p.Selection.Decode(&g.Selection)
	default:
		return fmt.Errorf("group selection must be a string or a list")
	}
	return nil
}

// Project holds project-wide settings.
type Project struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version,omitempty"`
	Mode            string `yaml:"mode,omitempty"`
	PackageManager  string `yaml:"package_manager,omitempty"`
	ContainerEngine string `yaml:"container_engine,omitempty"`
}

// Dependencies declares the Python side of the stack.
type Dependencies struct {
	Libraries     []Entry                   `yaml:"libraries,omitempty"`
	LibraryGroups map[string]GroupSelection `yaml:"library_groups,omitempty"`
}

// Services declares the infrastructure side of the stack.
type Services struct {
	Standalone    []Entry                   `yaml:"standalone,omitempty"`
	ServiceGroups map[string]GroupSelection `yaml:"service_groups,omitempty"`
}

// Manifest is the parsed hsm.yaml.
type Manifest struct {
	Project      Project      `yaml:"project"`
	Dependencies Dependencies `yaml:"dependencies,omitempty"`
	Services     Services     `yaml:"services,omitempty"`
}

// Default returns a fresh manifest for a new project.
func Default(name string) *Manifest {
	return &Manifest{
		Project: Project{
			Name:            name,
			Version:         "0.1.0",
			Mode:            "prod",
			PackageManager:  "uv",
			ContainerEngine: "docker",
		},
	}
}

// Load parses a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest back to disk.
func (m *Manifest) Save(path string) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// DefaultMode returns the project-wide mode, defaulting to prod.
func (m *Manifest) DefaultMode() string {
	if m.Project.Mode == "" {
		return "prod"
	}
	return m.Project.Mode
}

// AddLibrary appends a standalone library entry if absent.
func (m *Manifest) AddLibrary(name string) {
	for _, e := range m.Dependencies.Libraries {
		if e.Name == name {
			return
		}
	}
	m.Dependencies.Libraries = append(m.Dependencies.Libraries, Entry{Name: name})
}

// RemoveLibrary drops a standalone library entry.
func (m *Manifest) RemoveLibrary(name string) {
	kept := m.Dependencies.Libraries[:0]
	for _, e := range m.Dependencies.Libraries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	m.Dependencies.Libraries = kept
}

// AddService appends a standalone service entry if absent.
func (m *Manifest) AddService(name string) {
	for _, e := range m.Services.Standalone {
		if e.Name == name {
			return
		}
	}
	m.Services.Standalone = append(m.Services.Standalone, Entry{Name: name})
}

// RemoveService drops a standalone service entry.
func (m *Manifest) RemoveService(name string) {
	kept := m.Services.Standalone[:0]
	for _, e := range m.Services.Standalone {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	m.Services.Standalone = kept
}

// SetLibraryGroup records or replaces a library group selection.
func (m *Manifest) SetLibraryGroup(group string, selection []string) {
	if m.Dependencies.LibraryGroups == nil {
		m.Dependencies.LibraryGroups = map[string]GroupSelection{}
	}
	cur := m.Dependencies.LibraryGroups[group]
	cur.Selection = selection
	m.Dependencies.LibraryGroups[group] = cur
}

// SetServiceGroup records or replaces a service group selection.
func (m *Manifest) SetServiceGroup(group string, selection []string) {
	if m.Services.ServiceGroups == nil {
		m.Services.ServiceGroups = map[string]GroupSelection{}
	}
	cur := m.Services.ServiceGroups[group]
	cur.Selection = selection
	m.Services.ServiceGroups[group] = cur
}

// RemoveGroup drops a group selection from either section.
func (m *Manifest) RemoveGroup(group string) {
	delete(m.Dependencies.LibraryGroups, group)
	delete(m.Services.ServiceGroups, group)
}

// SetMode applies a mode override to every entry and group matching
// name, or to the whole project when name is empty.
func (m *Manifest) SetMode(name, mode string) {
	if name == "" {
		m.Project.Mode = mode
		return
	}
	for i := range m.Dependencies.Libraries {
		if m.Dependencies.Libraries[i].Name == name {
			m.Dependencies.Libraries[i].Mode = mode
		}
	}
	for i := range m.Services.Standalone {
		if m.Services.Standalone[i].Name == name {
			m.Services.Standalone[i].Mode = mode
		}
	}
	if g, ok := m.Dependencies.LibraryGroups[name]; ok {
		g.Mode = mode
		m.Dependencies.LibraryGroups[name] = g
	}
	if g, ok := m.Services.ServiceGroups[name]; ok {
		g.Mode = mode
		m.Services.ServiceGroups[name] = g
	}
}

// LibraryGroupNames returns the declared library group names, sorted
// for deterministic iteration.
func (m *Manifest) LibraryGroupNames() []string {
	return sortedKeys(m.Dependencies.LibraryGroups)
}

// ServiceGroupNames returns the declared service group names, sorted.
func (m *Manifest) ServiceGroupNames() []string {
	return sortedKeys(m.Services.ServiceGroups)
}

func sortedKeys(groups map[string]GroupSelection) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
