// File: internal/resolve/types.go
// Brief: Resolved plan types produced by the resolution pipeline.

// Package resolve computes a project's target configuration from the
// registry and manifest: it expands group selections, walks implication
// edges (merging edges that converge on a shared service), picks one
// source variant and deployment profile per component, and interpolates
// variables. The pipeline is pure: it performs no I/O, mutates neither
// input, and either returns a complete plan or the first error.
package resolve

import (
	"github.com/example/hsm/internal/manifest"
	"github.com/example/hsm/internal/registry"
)

// VariableSource supplies values for ${NAME} placeholders. Lookups are
// lazy: only placeholders reachable in the final plan are queried.
type VariableSource interface {
	Lookup(name string) (string, bool)
}

// VariableFunc adapts a plain function to a VariableSource.
type VariableFunc func(name string) (string, bool)

func (f VariableFunc) Lookup(name string) (string, bool) { return f(name) }

// Request carries the read-only inputs of one resolution pass.
type Request struct {
	Registry *registry.Store
	Manifest *manifest.Manifest
	Vars     VariableSource
}

// Component is one fully resolved entry of the plan.
type Component struct {
	Name    string
	Kind    registry.Kind
	Mode    registry.Mode
	Source  registry.Source
	Version string

	// Profile resolution results; services only.
	Profile  string
	External bool

	// Env is the interpolated union of component, source, and profile
	// env, in that precedence order. ${HSM_MERGED.key} placeholders are
	// left for the adapter layer to substitute.
	Env map[string]string

	// Orchestration settings, deduped union of component and source
	// declarations; services only.
	ContainerName  string
	NetworkAliases []string
	Ports          []string
	Volumes        []string

	// Merged implication parameters demanded of this component.
	// Params holds list-typed values in first-seen order, deduplicated;
	// Scalars holds agreed scalar values. Nil when nothing implies this
	// component.
	Params  map[string][]string
	Scalars map[string]string

	// ImpliedBy lists the components whose edges contributed here, in
	// contribution order; empty for purely explicit selections.
	ImpliedBy []string

	// SelectedBy records why the component is in the plan
	// ("manifest", "group:<name>", or "implied:<source>").
	SelectedBy []string
}

// MergedTarget is a service that is the destination of two or more
// implication edges, with the union of everything demanded of it.
type MergedTarget struct {
	Target       string
	Params       map[string][]string
	Scalars      map[string]string
	Contributors []string
}

// Plan is the terminal output of a successful resolution pass:
// libraries first, then services, each in first-discovery order, with
// merged targets attached by name.
type Plan struct {
	Libraries []*Component
	Services  []*Component
	Merged    map[string]*MergedTarget
}

// Component returns the plan entry with the given name, if present.
func (p *Plan) Component(name string) (*Component, bool) {
	for _, c := range p.Libraries {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range p.Services {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ManagedServices returns the services hsm orchestrates itself,
// excluding external-profile services.
func (p *Plan) ManagedServices() []*Component {
	out := make([]*Component, 0, len(p.Services))
	for _, c := range p.Services {
		if !c.External {
			out = append(out, c)
		}
	}
	return out
}
