// File: internal/registry/store.go
// Brief: Immutable snapshot of registry definitions used during resolution.

package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Directory layout under the registry root. One YAML document per
// definition, named after the component or group it defines.
const (
	DirLibraries     = "libraries"
	DirServices      = "services"
	DirLibraryGroups = "library_groups"
	DirServiceGroups = "service_groups"
)

var registryDirs = []string{DirLibraries, DirServices, DirLibraryGroups, DirServiceGroups}

// Store is a read-only snapshot of every definition in a registry
// directory. Load it once, resolve against it, discard it. A Store is
// never mutated after Load returns, so concurrent resolution passes may
// share one.
type Store struct {
	root       string
	components map[string]*Component
	groups     map[string]*Group
}

// New builds a Store from already parsed definitions and validates the
// snapshot as a whole. Callers that load definitions themselves (or
// tests) use this directly; Load wraps it with the directory layout.
func New(components []*Component, groups []*Group) (*Store, error) {
	s := &Store{
		components: map[string]*Component{},
		groups:     map[string]*Group{},
	}
	for _, c := range components {
		if _, ok := s.components[c.Name]; ok {
			return nil, fmt.Errorf("duplicate component %q", c.Name)
		}
		s.components[c.Name] = c
	}
	for _, g := range groups {
		if _, ok := s.groups[g.Name]; ok {
			return nil, fmt.Errorf("duplicate group %q", g.Name)
		}
		s.groups[g.Name] = g
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads every definition under root into a Store and validates the
// snapshot as a whole.
func Load(root string) (*Store, error) {
	s := &Store{
		root:       root,
		components: map[string]*Component{},
		groups:     map[string]*Group{},
	}
	for _, dir := range []string{DirLibraries, DirServices} {
		kind := KindLibrary
		if dir == DirServices {
			kind = KindService
		}
		if err := eachYAML(filepath.Join(root, dir), func(path string, raw []byte) error {
			var c Component
			if err := yaml.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			if c.Name == "" {
				c.Name = stem(path)
			}
			if c.Kind == "" {
				c.Kind = kind
			}
			if prev, ok := s.components[c.Name]; ok {
				return fmt.Errorf("duplicate component %q (%s and %s)", c.Name, prev.Kind, c.Kind)
			}
			s.components[c.Name] = &c
			return nil
		}); err != nil {
			return nil, err
		}
	}
	for _, dir := range []string{DirLibraryGroups, DirServiceGroups} {
		kind := GroupKindLibrary
		if dir == DirServiceGroups {
			kind = GroupKindService
		}
		if err := eachYAML(filepath.Join(root, dir), func(path string, raw []byte) error {
			var g Group
			if err := yaml.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			if g.Name == "" {
				g.Name = stem(path)
			}
			if g.Kind == "" {
				g.Kind = kind
			}
			if _, ok := s.groups[g.Name]; ok {
				return fmt.Errorf("duplicate group %q", g.Name)
			}
			s.groups[g.Name] = &g
			return nil
		}); err != nil {
			return nil, err
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the directory the store was loaded from.
func (s *Store) Root() string { return s.root }

// Component looks up a component definition by name.
func (s *Store) Component(name string) (*Component, bool) {
	c, ok := s.components[name]
	return c, ok
}

// Group looks up a group definition by name.
func (s *Store) Group(name string) (*Group, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// ComponentNames returns every component name, sorted.
func (s *Store) ComponentNames() []string {
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupNames returns every group name, sorted.
func (s *Store) GroupNames() []string {
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search returns component and group names containing the query,
// case-insensitively.
func (s *Store) Search(query string) (components, groups []string) {
	query = strings.ToLower(query)
	for _, name := range s.ComponentNames() {
		if strings.Contains(strings.ToLower(name), query) {
			components = append(components, name)
		}
	}
	for _, name := range s.GroupNames() {
		if strings.Contains(strings.ToLower(name), query) {
			groups = append(groups, name)
		}
	}
	return components, groups
}

func (s *Store) validate() error {
	for _, name := range s.ComponentNames() {
		c := s.components[name]
		switch c.Kind {
		case KindLibrary, KindService:
		default:
			return fmt.Errorf("component %q has unknown type %q", name, c.Kind)
		}
		for i, edge := range c.Implies {
			if err := validateEdge(edge); err != nil {
				return fmt.Errorf("component %q implies[%d]: %w", name, i, err)
			}
		}
		if src := c.Sources.Prod; src != nil && src.Type == "pypi" && src.Version != "" && src.Version != "*" {
			if _, err := semver.NewConstraint(src.Version); err != nil {
				return fmt.Errorf("component %q: invalid version constraint %q: %w", name, src.Version, err)
			}
		}
		for pname, p := range c.Profiles {
			switch p.Mode {
			case "", ProfileManaged, ProfileExternal:
			default:
				return fmt.Errorf("component %q profile %q has unknown mode %q", name, pname, p.Mode)
			}
		}
	}
	for _, name := range s.GroupNames() {
		g := s.groups[name]
		switch g.Strategy {
		case StrategySingle, StrategyMulti:
		default:
			return fmt.Errorf("group %q has unknown strategy %q", name, g.Strategy)
		}
		if len(g.Options) == 0 {
			return fmt.Errorf("group %q has no options", name)
		}
		for _, opt := range g.Options {
			if _, ok := s.components[opt.Name]; !ok {
				return fmt.Errorf("group %q option %q does not exist in the registry", name, opt.Name)
			}
			for i, edge := range opt.Implies {
				if err := validateEdge(edge); err != nil {
					return fmt.Errorf("group %q option %q implies[%d]: %w", name, opt.Name, i, err)
				}
			}
		}
		for _, def := range g.Default {
			if _, ok := g.Option(def); !ok {
				return fmt.Errorf("group %q default %q is not one of its options", name, def)
			}
		}
		if g.Strategy == StrategySingle && len(g.Default) > 1 {
			return fmt.Errorf("group %q is 1-of-N but declares %d defaults", name, len(g.Default))
		}
	}
	return nil
}

func validateEdge(edge Edge) error {
	if strings.TrimSpace(edge.Target) == "" {
		return fmt.Errorf("edge has empty target")
	}
	for k := range edge.Params {
		if _, dup := edge.Collect[k]; dup {
			return fmt.Errorf("parameter %q declared as both scalar and collect", k)
		}
	}
	return nil
}

func eachYAML(dir string, fn func(path string, raw []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := fn(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
