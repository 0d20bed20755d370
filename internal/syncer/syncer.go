// File: internal/syncer/syncer.go
// Brief: Drives one full sync pass from manifest to materialized environment.

// Package syncer turns a project's manifest into reality: it resolves
// the plan, installs the Python side through the package adapter,
// renders the compose file through the container adapter, and records
// the pass in the project's state history. A failing step aborts the
// pass; nothing is retried.
package syncer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/example/hsm/internal/adapter"
	"github.com/example/hsm/internal/adapter/composegen"
	"github.com/example/hsm/internal/manifest"
	"github.com/example/hsm/internal/registry"
	"github.com/example/hsm/internal/resolve"
	"github.com/example/hsm/internal/state"
	"github.com/example/hsm/internal/varsource"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options configure a sync pass.
type Options struct {
	ProjectRoot  string
	RegistryRoot string
	Logger       *zap.Logger
	Vars         *varsource.Resolver

	// Frozen skips lock updates during package sync.
	Frozen bool
	// SkipState disables run history recording.
	SkipState bool
	// PackageArgs and ContainerArgs are extra tokenized arguments for
	// the underlying tools.
	PackageArgs   []string
	ContainerArgs []string
}

// Result summarizes a completed pass.
type Result struct {
	Plan         *resolve.Plan
	RunID        string
	Requirements []string
	ComposePath  string
}

// Syncer executes sync passes for one project.
type Syncer struct {
	opts Options
	log  *zap.Logger
}

// New returns a syncer. The registry root defaults to the HSM_REGISTRY
// environment variable when unset.
func New(opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RegistryRoot == "" {
		opts.RegistryRoot = os.Getenv("HSM_REGISTRY")
	}
	return &Syncer{opts: opts, log: opts.Logger}
}

// Plan loads the registry and manifest and resolves the project's
// target configuration without touching the environment.
func (s *Syncer) Plan() (*resolve.Plan, *manifest.Manifest, error) {
	m, err := manifest.Load(filepath.Join(s.opts.ProjectRoot, manifest.FileName))
	if err != nil {
		return nil, nil, errors.Wrap(err, "load manifest")
	}
	if s.opts.RegistryRoot == "" {
		return nil, nil, errors.New("no registry configured; pass --registry or set HSM_REGISTRY")
	}
	reg, err := registry.Load(s.opts.RegistryRoot)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load registry")
	}

	var vars resolve.VariableSource
	if s.opts.Vars != nil {
		vars = s.opts.Vars
	}
	plan, err := resolve.Resolve(resolve.Request{Registry: reg, Manifest: m, Vars: vars})
	if err != nil {
		// A provider failure makes "no value" lookups meaningless;
		// report the infrastructure error instead.
		if s.opts.Vars != nil {
			if infraErr := s.opts.Vars.Err(); infraErr != nil {
				return nil, nil, errors.Wrap(infraErr, "variable provider")
			}
		}
		return nil, nil, err
	}
	return plan, m, nil
}

// Run executes a full sync pass.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	plan, m, err := s.Plan()
	if err != nil {
		return nil, err
	}
	s.log.Info("plan resolved",
		zap.Int("libraries", len(plan.Libraries)),
		zap.Int("services", len(plan.Services)),
		zap.Int("merged", len(plan.Merged)))

	res := &Result{Plan: plan}

	var history *state.Store
	if !s.opts.SkipState {
		history, err = state.Open(s.opts.ProjectRoot, false)
		if err != nil {
			return nil, errors.Wrap(err, "open state")
		}
		defer history.Close()
		res.RunID, err = history.BeginRun(ctx, m.DefaultMode(), plan)
		if err != nil {
			return nil, errors.Wrap(err, "record run")
		}
	}

	err = s.materialize(ctx, plan, m, res)
	if history != nil {
		if recordErr := history.FinishRun(ctx, res.RunID, err); recordErr != nil {
			s.log.Warn("failed to close run record", zap.Error(recordErr))
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Syncer) materialize(ctx context.Context, plan *resolve.Plan, m *manifest.Manifest, res *Result) error {
	pkg, err := adapter.NewPackage(packageManager(m), adapter.Options{
		ProjectRoot: s.opts.ProjectRoot,
		Logger:      s.log,
		ExtraArgs:   s.opts.PackageArgs,
	})
	if err != nil {
		return err
	}
	for _, lib := range plan.Libraries {
		req, err := pkg.Requirement(lib)
		if err != nil {
			return err
		}
		res.Requirements = append(res.Requirements, req)
	}
	if err := pkg.Sync(ctx, res.Requirements, s.opts.Frozen); err != nil {
		return errors.Wrap(err, "sync packages")
	}

	engine, err := adapter.NewContainer(containerEngine(m), adapter.Options{
		ProjectRoot: s.opts.ProjectRoot,
		Logger:      s.log,
		ExtraArgs:   s.opts.ContainerArgs,
	})
	if err != nil {
		return err
	}
	content, err := engine.Generate(plan)
	if err != nil {
		return errors.Wrap(err, "generate service config")
	}
	res.ComposePath = engine.ConfigPath()
	if err := os.WriteFile(res.ComposePath, content, 0o644); err != nil {
		return errors.Wrap(err, "write service config")
	}
	s.log.Info("environment synced",
		zap.Int("requirements", len(res.Requirements)),
		zap.String("services_file", res.ComposePath))
	return nil
}

// Drift resolves the plan and compares the on-disk service config with
// what the plan would generate. An empty diff means no drift.
func (s *Syncer) Drift() (string, *resolve.Plan, error) {
	plan, m, err := s.Plan()
	if err != nil {
		return "", nil, err
	}
	engine, err := adapter.NewContainer(containerEngine(m), adapter.Options{
		ProjectRoot: s.opts.ProjectRoot,
		Logger:      s.log,
	})
	if err != nil {
		return "", nil, err
	}
	content, err := engine.Generate(plan)
	if err != nil {
		return "", nil, err
	}
	diff, err := composegen.Diff(engine.ConfigPath(), content)
	if err != nil {
		return "", nil, err
	}
	return diff, plan, nil
}

func packageManager(m *manifest.Manifest) string {
	if m.Project.PackageManager != "" {
		return m.Project.PackageManager
	}
	return "uv"
}

func containerEngine(m *manifest.Manifest) string {
	if m.Project.ContainerEngine != "" {
		return m.Project.ContainerEngine
	}
	return "docker"
}
