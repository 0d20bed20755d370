// File: internal/resolve/implies.go
// Brief: Transitive implication expansion and parameter merging.

package resolve

import (
	"sort"

	"github.com/example/hsm/internal/registry"
)

// node tracks one component discovered during expansion, with the
// overrides and traceability gathered along the way. Explicit
// selections keep their manifest overrides; implied components carry
// none and fall back to project defaults.
type node struct {
	name      string
	mode      string
	profile   string
	explicit  bool
	reasons   []string
	impliedBy []string
}

// contributions accumulates everything demanded of a single target by
// implication edges, keeping first-seen order for list values and the
// first contributor of every scalar for conflict reporting.
type contributions struct {
	target       string
	edgeCount    int
	contributors []string
	scalars      map[string]Contribution
	lists        map[string]*valueList
}

type valueList struct {
	values []string
	seen   map[string]struct{}
}

func (vl *valueList) add(v string) {
	if _, ok := vl.seen[v]; ok {
		return
	}
	vl.seen[v] = struct{}{}
	vl.values = append(vl.values, v)
}

// expansion is the output of the implication stage: every component in
// discovery order plus the merged demands per target.
type expansion struct {
	order    []string
	nodes    map[string]*node
	contribs map[string]*contributions
}

// expandImplications walks every seed's implication edges transitively,
// using a work queue and a visited set so cyclic graphs terminate with
// each component discovered exactly once. Parameters of edges that
// converge on one target are merged: collect-typed values are unioned
// in first-seen order, scalar values must agree exactly.
func expandImplications(reg *registry.Store, seeds []seed) (*expansion, error) {
	ex := &expansion{
		nodes:    map[string]*node{},
		contribs: map[string]*contributions{},
	}

	var queue []string
	for _, s := range seeds {
		if n, ok := ex.nodes[s.name]; ok {
			// Later selections of an already seeded component keep the
			// first selection's overrides; only the reason accumulates.
			n.reasons = append(n.reasons, s.reason)
			continue
		}
		ex.nodes[s.name] = &node{
			name:     s.name,
			mode:     s.mode,
			profile:  s.profile,
			explicit: true,
			reasons:  []string{s.reason},
		}
		ex.order = append(ex.order, s.name)
		queue = append(queue, s.name)
	}

	// Edges contributed by the selected group options count as edges of
	// the selected component itself.
	for _, s := range seeds {
		for _, edge := range s.edges {
			if err := ex.addEdge(reg, s.name, edge, &queue); err != nil {
				return nil, err
			}
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		comp, ok := reg.Component(name)
		if !ok {
			return nil, &UnknownComponentError{Name: name}
		}
		for _, edge := range comp.Implies {
			if err := ex.addEdge(reg, name, edge, &queue); err != nil {
				return nil, err
			}
		}
	}
	return ex, nil
}

// addEdge records one edge's demands against its target and discovers
// the target if it is new. An already visited target is never
// re-enqueued, but its newly contributed parameters still merge; this
// is what makes cycles terminate.
func (ex *expansion) addEdge(reg *registry.Store, source string, edge registry.Edge, queue *[]string) error {
	if _, ok := reg.Component(edge.Target); !ok {
		return &UnknownComponentError{Name: edge.Target, Ref: source}
	}

	if n, ok := ex.nodes[edge.Target]; ok {
		n.impliedBy = appendUnique(n.impliedBy, source)
		n.reasons = appendUnique(n.reasons, "implied:"+source)
	} else {
		ex.nodes[edge.Target] = &node{
			name:      edge.Target,
			reasons:   []string{"implied:" + source},
			impliedBy: []string{source},
		}
		ex.order = append(ex.order, edge.Target)
		*queue = append(*queue, edge.Target)
	}

	c := ex.contribs[edge.Target]
	if c == nil {
		c = &contributions{
			target:  edge.Target,
			scalars: map[string]Contribution{},
			lists:   map[string]*valueList{},
		}
		ex.contribs[edge.Target] = c
	}
	c.edgeCount++
	c.contributors = appendUnique(c.contributors, source)

	for _, key := range sortedKeys(edge.Params) {
		value := edge.Params[key]
		if prev, ok := c.scalars[key]; ok {
			if prev.Value != value {
				return &ConflictError{
					Target: edge.Target,
					Param:  key,
					First:  prev,
					Second: Contribution{Source: source, Value: value},
				}
			}
			continue
		}
		c.scalars[key] = Contribution{Source: source, Value: value}
	}
	for _, key := range sortedKeys(edge.Collect) {
		vl := c.lists[key]
		if vl == nil {
			vl = &valueList{seen: map[string]struct{}{}}
			c.lists[key] = vl
		}
		vl.add(edge.Collect[key])
	}
	return nil
}

// mergedTargets builds the MergedTarget map for every target with two
// or more contributing edges.
func (ex *expansion) mergedTargets() map[string]*MergedTarget {
	merged := map[string]*MergedTarget{}
	for target, c := range ex.contribs {
		if c.edgeCount < 2 {
			continue
		}
		merged[target] = &MergedTarget{
			Target:       target,
			Params:       c.listValues(),
			Scalars:      c.scalarValues(),
			Contributors: append([]string(nil), c.contributors...),
		}
	}
	return merged
}

func (c *contributions) listValues() map[string][]string {
	if len(c.lists) == 0 {
		return nil
	}
	out := make(map[string][]string, len(c.lists))
	for key, vl := range c.lists {
		out[key] = append([]string(nil), vl.values...)
	}
	return out
}

func (c *contributions) scalarValues() map[string]string {
	if len(c.scalars) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.scalars))
	for key, contrib := range c.scalars {
		out[key] = contrib.Value
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
