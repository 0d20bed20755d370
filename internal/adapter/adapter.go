// Package adapter defines the pluggable backends that materialize a
// resolved plan: a package adapter for the Python toolchain and a
// container adapter for service orchestration. Implementations
// register explicit constructors at process start; there is no
// reflective discovery.
package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/hsm/internal/resolve"
	"go.uber.org/zap"
)

// Options carry the shared construction inputs of every adapter.
type Options struct {
	ProjectRoot string
	Logger      *zap.Logger
	// ExtraArgs are user-supplied arguments appended to tool
	// invocations (already tokenized).
	ExtraArgs []string
}

// PackageAdapter materializes the library half of a plan.
type PackageAdapter interface {
	// Sync writes the dependency manifest and installs the given
	// requirement strings. frozen skips lock updates.
	Sync(ctx context.Context, requirements []string, frozen bool) error
	// Lock refreshes the lock file without installing.
	Lock(ctx context.Context) error
	// InitLib scaffolds a new local library at dir.
	InitLib(ctx context.Context, dir string) error
	// Requirement renders one resolved library as a requirement string
	// for this package manager.
	Requirement(c *resolve.Component) (string, error)
}

// ContainerAdapter materializes the service half of a plan.
type ContainerAdapter interface {
	// Generate renders the orchestration file for the plan's managed
	// services and returns its contents.
	Generate(plan *resolve.Plan) ([]byte, error)
	// ConfigPath returns where Generate's output is written.
	ConfigPath() string
	// Up starts the named services, or all when none are given.
	Up(ctx context.Context, services []string) error
	// Down stops and removes the project's services.
	Down(ctx context.Context) error
}

type (
	PackageConstructor   func(Options) (PackageAdapter, error)
	ContainerConstructor func(Options) (ContainerAdapter, error)
)

var (
	packageConstructors   = map[string]PackageConstructor{}
	containerConstructors = map[string]ContainerConstructor{}
)

// RegisterPackage makes a package adapter constructor available under
// name. Called from adapter package init functions.
func RegisterPackage(name string, ctor PackageConstructor) {
	packageConstructors[name] = ctor
}

// RegisterContainer makes a container adapter constructor available
// under name.
func RegisterContainer(name string, ctor ContainerConstructor) {
	containerConstructors[name] = ctor
}

// NewPackage constructs the package adapter registered under name.
func NewPackage(name string, opts Options) (PackageAdapter, error) {
	ctor, ok := packageConstructors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported package manager %q (available: %v)", name, keys(packageConstructors))
	}
	return ctor(opts)
}

// NewContainer constructs the container adapter registered under name.
func NewContainer(name string, opts Options) (ContainerAdapter, error) {
	ctor, ok := containerConstructors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported container engine %q (available: %v)", name, keys(containerConstructors))
	}
	return ctor(opts)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
