// File: internal/resolve/selection.go
// Brief: Group expansion and selection validation.

package resolve

import (
	"github.com/example/hsm/internal/manifest"
	"github.com/example/hsm/internal/registry"
)

// seed is one explicitly selected component before implication
// expansion, carrying the overrides and extra edges its selection path
// contributes.
type seed struct {
	name    string
	mode    string
	profile string
	reason  string
	edges   []registry.Edge
}

// expandSelections flattens the manifest's direct references and group
// selections into an ordered seed list. Pure function of its inputs.
func expandSelections(reg *registry.Store, man *manifest.Manifest) ([]seed, error) {
	var seeds []seed

	for _, entry := range man.Dependencies.Libraries {
		if _, ok := reg.Component(entry.Name); !ok {
			return nil, &UnknownComponentError{Name: entry.Name, Ref: "manifest"}
		}
		seeds = append(seeds, seed{name: entry.Name, mode: entry.Mode, profile: entry.Profile, reason: "manifest"})
	}
	groupSeeds, err := expandGroups(reg, man.LibraryGroupNames(), man.Dependencies.LibraryGroups)
	if err != nil {
		return nil, err
	}
	seeds = append(seeds, groupSeeds...)

	for _, entry := range man.Services.Standalone {
		if _, ok := reg.Component(entry.Name); !ok {
			return nil, &UnknownComponentError{Name: entry.Name, Ref: "manifest"}
		}
		seeds = append(seeds, seed{name: entry.Name, mode: entry.Mode, profile: entry.Profile, reason: "manifest"})
	}
	groupSeeds, err = expandGroups(reg, man.ServiceGroupNames(), man.Services.ServiceGroups)
	if err != nil {
		return nil, err
	}
	seeds = append(seeds, groupSeeds...)

	return seeds, nil
}

func expandGroups(reg *registry.Store, names []string, groups map[string]manifest.GroupSelection) ([]seed, error) {
	var seeds []seed
	for _, name := range names {
		sel := groups[name]
		group, ok := reg.Group(name)
		if !ok {
			return nil, &UnknownGroupError{Group: name}
		}
		chosen := sel.Selection
		if len(chosen) == 0 {
			chosen = group.Default
		}
		for _, option := range chosen {
			if _, ok := group.Option(option); !ok {
				return nil, &UnknownOptionError{Group: name, Option: option}
			}
		}
		if group.Strategy == registry.StrategySingle && len(chosen) != 1 {
			return nil, &InvalidSelectionError{Group: name, Selected: chosen}
		}
		for _, option := range chosen {
			opt, _ := group.Option(option)
			seeds = append(seeds, seed{
				name:    option,
				mode:    sel.Mode,
				profile: sel.Profile,
				reason:  "group:" + name,
				edges:   opt.Implies,
			})
		}
	}
	return seeds, nil
}
