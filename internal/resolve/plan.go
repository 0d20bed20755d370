// File: internal/resolve/plan.go
// Brief: Resolution pipeline entry point and plan assembly.

package resolve

import (
	"fmt"

	"github.com/example/hsm/internal/registry"
)

// Resolve runs the whole pipeline: selection expansion, implication
// expansion and merging, mode/profile resolution, and plan assembly.
// The first error from any stage aborts the pass; no partial plan is
// ever returned. Resolution is deterministic: identical inputs produce
// an identical plan.
func Resolve(req Request) (*Plan, error) {
	if req.Registry == nil {
		return nil, fmt.Errorf("resolve: registry store is required")
	}
	if req.Manifest == nil {
		return nil, fmt.Errorf("resolve: project manifest is required")
	}

	seeds, err := expandSelections(req.Registry, req.Manifest)
	if err != nil {
		return nil, fmt.Errorf("expand selections: %w", err)
	}

	ex, err := expandImplications(req.Registry, seeds)
	if err != nil {
		return nil, fmt.Errorf("expand implications: %w", err)
	}

	defaultMode := req.Manifest.DefaultMode()
	plan := &Plan{Merged: ex.mergedTargets()}
	for _, name := range ex.order {
		resolved, err := resolveComponent(req.Registry, ex.nodes[name], defaultMode, req.Vars)
		if err != nil {
			return nil, fmt.Errorf("resolve component: %w", err)
		}
		if c := ex.contribs[name]; c != nil {
			resolved.Params = c.listValues()
			resolved.Scalars = c.scalarValues()
		}
		switch resolved.Kind {
		case registry.KindLibrary:
			plan.Libraries = append(plan.Libraries, resolved)
		case registry.KindService:
			plan.Services = append(plan.Services, resolved)
		}
	}
	return plan, nil
}
