// File: internal/adapter/composegen/composegen.go
// Brief: Container adapter that renders managed services to a compose file.

// Package composegen materializes the service half of a plan as a
// docker compose project. The generated file is fully rendered: every
// placeholder is resolved before it is written, so `docker compose`
// never needs the hsm registry.
package composegen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/format"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/example/hsm/internal/adapter"
	"github.com/example/hsm/internal/resolve"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FileName is the compose file the adapter owns inside a project.
const FileName = "docker-compose.hsm.yml"

const networkName = "hsm"

const fileHeader = "# Generated by hsm sync. Do not edit; changes are overwritten.\n"

func init() {
	adapter.RegisterContainer("docker", func(opts adapter.Options) (adapter.ContainerAdapter, error) {
		if opts.Logger == nil {
			opts.Logger = zap.NewNop()
		}
		return &Adapter{root: opts.ProjectRoot, log: opts.Logger, extraArgs: opts.ExtraArgs}, nil
	})
}

// Adapter renders and drives a docker compose project.
type Adapter struct {
	root      string
	log       *zap.Logger
	extraArgs []string

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, dir string, args ...string) error
}

// ConfigPath returns the compose file path inside the project.
func (a *Adapter) ConfigPath() string {
	return filepath.Join(a.root, FileName)
}

// Generate renders the plan's managed services as a compose project.
// External-profile services are omitted; their connection env already
// travels with the components that depend on them.
func (a *Adapter) Generate(plan *resolve.Plan) ([]byte, error) {
	services := composetypes.Services{}
	for _, c := range plan.ManagedServices() {
		svc, err := a.serviceConfig(c)
		if err != nil {
			return nil, err
		}
		services[c.Name] = svc
	}

	project := &composetypes.Project{
		Name:     projectName(a.root),
		Services: services,
		Networks: composetypes.Networks{
			networkName: composetypes.NetworkConfig{Name: networkName},
		},
		Volumes: namedVolumes(services),
	}

	body, err := project.MarshalYAML()
	if err != nil {
		return nil, errors.Wrap(err, "render compose project")
	}
	return append([]byte(fileHeader), body...), nil
}

// namedVolumes declares every named volume the services mount. Bind
// mounts need no declaration; named volumes do, or compose rejects the
// file.
func namedVolumes(services composetypes.Services) composetypes.Volumes {
	volumes := composetypes.Volumes{}
	for _, svc := range services {
		for _, vol := range svc.Volumes {
			if vol.Type == composetypes.VolumeTypeVolume && vol.Source != "" {
				volumes[vol.Source] = composetypes.VolumeConfig{Name: vol.Source}
			}
		}
	}
	if len(volumes) == 0 {
		return nil
	}
	return volumes
}

func (a *Adapter) serviceConfig(c *resolve.Component) (composetypes.ServiceConfig, error) {
	svc := composetypes.ServiceConfig{
		Name:    c.Name,
		Restart: "unless-stopped",
	}

	switch c.Source.Type {
	case "docker-image":
		svc.Image = c.Source.Image
	case "build":
		ctxDir := c.Source.Path
		if ctxDir == "" {
			ctxDir = "."
		}
		svc.Build = &composetypes.BuildConfig{
			Context:    ctxDir,
			Dockerfile: c.Source.Dockerfile,
		}
	default:
		return svc, fmt.Errorf("service %q has source type %q, which docker compose cannot run", c.Name, c.Source.Type)
	}

	if c.ContainerName != "" {
		svc.ContainerName = c.ContainerName
	}

	for _, spec := range c.Ports {
		parsed, err := composetypes.ParsePortConfig(spec)
		if err != nil {
			return svc, errors.Wrapf(err, "service %q port %q", c.Name, spec)
		}
		svc.Ports = append(svc.Ports, parsed...)
	}
	for _, spec := range c.Volumes {
		vol, err := format.ParseVolume(spec)
		if err != nil {
			return svc, errors.Wrapf(err, "service %q volume %q", c.Name, spec)
		}
		svc.Volumes = append(svc.Volumes, vol)
	}

	env, err := substituteMerged(c)
	if err != nil {
		return svc, err
	}
	svc.Environment = composetypes.Mapping(env).ToMappingWithEquals()

	svc.Networks = map[string]*composetypes.ServiceNetworkConfig{
		networkName: {Aliases: append([]string(nil), c.NetworkAliases...)},
	}
	return svc, nil
}

// substituteMerged replaces ${HSM_MERGED.key} placeholders in a
// service's env with the values its dependents contributed: the agreed
// scalar, or the collected list comma-joined in contribution order.
func substituteMerged(c *resolve.Component) (map[string]string, error) {
	out := make(map[string]string, len(c.Env))
	for name, value := range c.Env {
		replaced, err := resolve.SubstituteMerged(value, func(key string) (string, bool) {
			if v, ok := c.Scalars[key]; ok {
				return v, true
			}
			if vs, ok := c.Params[key]; ok {
				return strings.Join(vs, ","), true
			}
			return "", false
		})
		if err != nil {
			return nil, fmt.Errorf("service %q env %s: %w", c.Name, name, err)
		}
		out[name] = replaced
	}
	return out, nil
}

// Up starts the named services, or the whole project when none are
// given.
func (a *Adapter) Up(ctx context.Context, services []string) error {
	args := []string{"compose", "-f", a.ConfigPath(), "up", "-d"}
	args = append(args, a.extraArgs...)
	args = append(args, services...)
	a.log.Info("starting services", zap.Strings("services", services))
	return a.run(ctx, args...)
}

// Down stops and removes the project's services.
func (a *Adapter) Down(ctx context.Context) error {
	args := []string{"compose", "-f", a.ConfigPath(), "down"}
	args = append(args, a.extraArgs...)
	a.log.Info("stopping services")
	return a.run(ctx, args...)
}

func (a *Adapter) run(ctx context.Context, args ...string) error {
	if a.runCommand != nil {
		return a.runCommand(ctx, a.root, args...)
	}
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = a.root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "docker %s", strings.Join(args, " "))
	}
	return nil
}

func projectName(root string) string {
	name := strings.ToLower(filepath.Base(root))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-_")
	if cleaned == "" {
		return "hsm"
	}
	return cleaned
}
