// File: internal/registry/types.go
// Brief: Component and group definition types stored in the hsm registry.

package registry

// Kind distinguishes the two component categories the registry holds.
type Kind string

const (
	KindLibrary Kind = "library"
	KindService Kind = "service"
)

// Mode is the dev/prod axis that selects a source variant.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// Strategy controls how many options of a group may be active at once.
type Strategy string

const (
	StrategySingle Strategy = "1-of-N"
	StrategyMulti  Strategy = "M-of-N"
)

// Source is one concrete way to obtain a component, tagged by Type.
// Which fields are meaningful depends on the tag: git uses URL/Ref,
// local uses Path, pypi uses Version, docker-image uses Image, and
// build uses Path/Dockerfile.
type Source struct {
	Type       string `yaml:"type"`
	URL        string `yaml:"url,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
	Path       string `yaml:"path,omitempty"`
	Editable   bool   `yaml:"editable,omitempty"`
	Version    string `yaml:"version,omitempty"`
	Image      string `yaml:"image,omitempty"`
	Dockerfile string `yaml:"dockerfile,omitempty"`

	// Container orchestration overrides carried by service sources.
	ContainerName  string            `yaml:"container_name,omitempty"`
	NetworkAliases []string          `yaml:"network_aliases,omitempty"`
	Ports          []string          `yaml:"ports,omitempty"`
	Volumes        []string          `yaml:"volumes,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
}

// Sources holds the per-mode source variants of a component.
type Sources struct {
	Prod *Source `yaml:"prod,omitempty"`
	Dev  *Source `yaml:"dev,omitempty"`
}

// Edge declares that a component demands another component, with
// parameters describing what it asks of the target. Params entries are
// scalar and must agree across every contributor to the same target;
// Collect entries are list-typed and are union-merged in first-seen
// order. The two key sets on a single edge must be disjoint.
type Edge struct {
	Target  string            `yaml:"target"`
	Params  map[string]string `yaml:"params,omitempty"`
	Collect map[string]string `yaml:"collect,omitempty"`
}

// Profile is a named deployment configuration for a service. Mode is
// either "managed" (hsm orchestrates the container) or "external" (the
// service exists outside the project; only its connection env is used).
type Profile struct {
	Mode string            `yaml:"mode,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

const (
	ProfileManaged  = "managed"
	ProfileExternal = "external"
)

// Component is a single library or service definition.
type Component struct {
	Name        string             `yaml:"name"`
	Kind        Kind               `yaml:"type"`
	Version     string             `yaml:"version,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Sources     Sources            `yaml:"sources"`
	Implies     []Edge             `yaml:"implies,omitempty"`
	Profiles    map[string]Profile `yaml:"profiles,omitempty"`

	// Orchestration defaults for services; source variants may extend them.
	ContainerName  string            `yaml:"container_name,omitempty"`
	NetworkAliases []string          `yaml:"network_aliases,omitempty"`
	Ports          []string          `yaml:"ports,omitempty"`
	Volumes        []string          `yaml:"volumes,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
}

// SourceFor returns the source variant for the given mode, or nil when
// the component declares none for it.
func (c *Component) SourceFor(mode Mode) *Source {
	if mode == ModeDev {
		return c.Sources.Dev
	}
	return c.Sources.Prod
}

// GroupOption is one selectable member of a group. Options may carry
// their own implication edges, contributed on behalf of the selected
// component.
type GroupOption struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Implies     []Edge `yaml:"implies,omitempty"`
}

// Group is a named set of component options with a selection strategy.
type Group struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"type"` // library_group or service_group
	Strategy    Strategy      `yaml:"strategy"`
	Options     []GroupOption `yaml:"options"`
	Default     []string      `yaml:"default,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Comment     string        `yaml:"comment,omitempty"`
}

const (
	GroupKindLibrary = "library_group"
	GroupKindService = "service_group"
)

// Option returns the option with the given name, if present.
func (g *Group) Option(name string) (*GroupOption, bool) {
	for i := range g.Options {
		if g.Options[i].Name == name {
			return &g.Options[i], true
		}
	}
	return nil, false
}
