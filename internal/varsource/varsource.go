// Package varsource supplies values for the ${NAME} placeholders the
// resolver interpolates. Values come from an ordered provider chain:
// typically the process environment, then an optional secrets file,
// then an optional Vault mount. Lookups are cached for the lifetime of
// a resolver and audited so a sync can report which variables it read.
package varsource

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Provider resolves one variable name. ok=false means the provider has
// no value; err is reserved for infrastructure failures (unreachable
// Vault, unreadable file), which must not masquerade as "unset".
type Provider interface {
	Name() string
	Get(ctx context.Context, name string) (value string, ok bool, err error)
}

// AuditEntry records one variable that was actually read.
type AuditEntry struct {
	Variable string
	Provider string
}

// Resolver chains providers with caching. It satisfies the resolver
// core's VariableSource contract; infrastructure errors are collected
// and surfaced via Err after the pass.
type Resolver struct {
	ctx       context.Context
	providers []Provider

	mu       sync.Mutex
	cache    map[string]cached
	audit    []AuditEntry
	firstErr error
}

type cached struct {
	value string
	ok    bool
}

// NewResolver builds a resolver over the given providers, consulted in
// order. The context bounds every provider call made during lookups.
func NewResolver(ctx context.Context, providers ...Provider) *Resolver {
	return &Resolver{
		ctx:       ctx,
		providers: providers,
		cache:     map[string]cached{},
	}
}

// Lookup returns the value for name from the first provider that has
// one. A provider infrastructure error is recorded (see Err) and the
// chain continues, so a flaky provider never silently shadows a later
// one.
func (r *Resolver) Lookup(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit, ok := r.cache[name]; ok {
		return hit.value, hit.ok
	}
	for _, p := range r.providers {
		value, ok, err := p.Get(r.ctx, name)
		if err != nil {
			if r.firstErr == nil {
				r.firstErr = err
			}
			continue
		}
		if ok {
			r.cache[name] = cached{value: value, ok: true}
			r.audit = append(r.audit, AuditEntry{Variable: name, Provider: p.Name()})
			return value, true
		}
	}
	r.cache[name] = cached{}
	return "", false
}

// Err returns the first provider infrastructure error seen, if any.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// Audit returns the variables read so far, sorted by name.
func (r *Resolver) Audit() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := append([]AuditEntry(nil), r.audit...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Variable < entries[j].Variable })
	return entries
}

// Static is a fixed in-memory provider, mainly for tests and defaults.
type Static struct {
	Values map[string]string
	Label  string
}

func (s Static) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s Static) Get(_ context.Context, name string) (string, bool, error) {
	v, ok := s.Values[name]
	return v, ok, nil
}

// Env resolves variables from a snapshot of the process environment.
type Env struct {
	environ map[string]string
}

// NewEnv snapshots environ (as returned by os.Environ).
func NewEnv(environ []string) Env {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return Env{environ: m}
}

func (e Env) Name() string { return "env" }

func (e Env) Get(_ context.Context, name string) (string, bool, error) {
	v, ok := e.environ[name]
	return v, ok, nil
}
