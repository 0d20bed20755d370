// Package uvpkg adapts the uv package manager: it renders resolved
// libraries as requirement strings, rewrites pyproject.toml, and
// shells out to uv for sync/lock/init.
package uvpkg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/example/hsm/internal/adapter"
	"github.com/example/hsm/internal/resolve"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func init() {
	adapter.RegisterPackage("uv", func(opts adapter.Options) (adapter.PackageAdapter, error) {
		if opts.Logger == nil {
			opts.Logger = zap.NewNop()
		}
		return &Adapter{root: opts.ProjectRoot, log: opts.Logger, extraArgs: opts.ExtraArgs}, nil
	})
}

// Adapter drives uv for one project root.
type Adapter struct {
	root      string
	log       *zap.Logger
	extraArgs []string

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, dir string, args ...string) error
}

// Requirement renders a resolved library as a PEP 508 requirement
// string for uv.
func (a *Adapter) Requirement(c *resolve.Component) (string, error) {
	src := c.Source
	switch src.Type {
	case "pypi":
		if src.Version == "" || src.Version == "*" {
			return c.Name, nil
		}
		return c.Name + src.Version, nil
	case "git":
		if src.URL == "" {
			return "", fmt.Errorf("library %q has a git source without a url", c.Name)
		}
		req := fmt.Sprintf("%s @ git+%s", c.Name, src.URL)
		if src.Ref != "" {
			req += "@" + src.Ref
		}
		return req, nil
	case "local":
		if src.Path == "" {
			return "", fmt.Errorf("library %q has a local source without a path", c.Name)
		}
		path := src.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.root, path)
		}
		return fmt.Sprintf("%s @ file://%s", c.Name, filepath.ToSlash(path)), nil
	default:
		return "", fmt.Errorf("library %q has source type %q, which uv cannot install", c.Name, src.Type)
	}
}

// Sync rewrites pyproject.toml's [project].dependencies and runs
// uv sync.
func (a *Adapter) Sync(ctx context.Context, requirements []string, frozen bool) error {
	if err := a.writeDependencies(requirements); err != nil {
		return err
	}
	args := []string{"sync"}
	if frozen {
		args = append(args, "--frozen")
	}
	args = append(args, a.extraArgs...)
	a.log.Info("running uv sync", zap.Int("requirements", len(requirements)), zap.Bool("frozen", frozen))
	return a.run(ctx, a.root, args...)
}

// Lock refreshes uv.lock.
func (a *Adapter) Lock(ctx context.Context) error {
	return a.run(ctx, a.root, append([]string{"lock"}, a.extraArgs...)...)
}

// InitLib scaffolds a library with uv init --lib.
func (a *Adapter) InitLib(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return a.run(ctx, dir, "init", "--lib")
}

func (a *Adapter) writeDependencies(requirements []string) error {
	path := filepath.Join(a.root, "pyproject.toml")
	doc := map[string]any{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err):
		// Start a minimal document; uv fills the rest on first sync.
	default:
		return err
	}

	project, _ := doc["project"].(map[string]any)
	if project == nil {
		project = map[string]any{}
	}
	project["dependencies"] = requirements
	doc["project"] = project

	out, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "render pyproject.toml")
	}
	return os.WriteFile(path, out, 0o644)
}

func (a *Adapter) run(ctx context.Context, dir string, args ...string) error {
	if a.runCommand != nil {
		return a.runCommand(ctx, dir, args...)
	}
	cmd := exec.CommandContext(ctx, "uv", args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "uv %v", args)
	}
	return nil
}
