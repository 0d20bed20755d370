// File: internal/resolve/modes.go
// Brief: Effective mode, source variant, and deployment profile per component.

package resolve

import (
	"github.com/example/hsm/internal/registry"
)

// resolveComponent turns one discovered node into a plan entry: it
// picks the effective mode, the concrete source variant, and (for
// services) the deployment profile, then interpolates the env mapping.
func resolveComponent(reg *registry.Store, n *node, defaultMode string, vars VariableSource) (*Component, error) {
	mode, err := effectiveMode(n, defaultMode)
	if err != nil {
		return nil, err
	}
	comp, ok := reg.Component(n.name)
	if !ok {
		return nil, &UnknownComponentError{Name: n.name}
	}
	source := comp.SourceFor(mode)
	if source == nil {
		return nil, &MissingSourceError{Component: n.name, Mode: mode}
	}

	resolved := &Component{
		Name:       n.name,
		Kind:       comp.Kind,
		Mode:       mode,
		Source:     *source,
		Version:    comp.Version,
		ImpliedBy:  append([]string(nil), n.impliedBy...),
		SelectedBy: append([]string(nil), n.reasons...),
	}
	if source.Version != "" {
		resolved.Version = source.Version
	}

	env := mergeEnv(comp.Env, source.Env)
	if comp.Kind == registry.KindService {
		profile, profileEnv, err := effectiveProfile(comp, n, mode)
		if err != nil {
			return nil, err
		}
		resolved.Profile = profile.name
		resolved.External = profile.external
		env = mergeEnv(env, profileEnv)

		resolved.ContainerName = comp.ContainerName
		if source.ContainerName != "" {
			resolved.ContainerName = source.ContainerName
		}
		if resolved.ContainerName == "" {
			resolved.ContainerName = n.name
		}
		resolved.NetworkAliases = unionStrings(comp.NetworkAliases, source.NetworkAliases)
		resolved.Ports = unionStrings(comp.Ports, source.Ports)
		resolved.Volumes = unionStrings(comp.Volumes, source.Volumes)
	}

	resolved.Env, err = interpolateMap(env, n.name, vars)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func effectiveMode(n *node, defaultMode string) (registry.Mode, error) {
	mode := n.mode
	if mode == "" {
		mode = defaultMode
	}
	switch registry.Mode(mode) {
	case registry.ModeDev, registry.ModeProd:
		return registry.Mode(mode), nil
	default:
		return "", &InvalidModeError{Component: n.name, Mode: mode}
	}
}

type profileChoice struct {
	name     string
	external bool
}

// effectiveProfile picks the deployment profile for a service: an
// explicit manifest reference wins and must exist; otherwise a profile
// named after the effective mode applies when declared; a service with
// no matching profile runs managed.
func effectiveProfile(comp *registry.Component, n *node, mode registry.Mode) (profileChoice, map[string]string, error) {
	if n.profile != "" {
		p, ok := comp.Profiles[n.profile]
		if !ok {
			return profileChoice{}, nil, &MissingProfileError{Component: n.name, Profile: n.profile}
		}
		return profileChoice{name: n.profile, external: p.Mode == registry.ProfileExternal}, p.Env, nil
	}
	if p, ok := comp.Profiles[string(mode)]; ok {
		return profileChoice{name: string(mode), external: p.Mode == registry.ProfileExternal}, p.Env, nil
	}
	return profileChoice{}, nil, nil
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
