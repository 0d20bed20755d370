// File: internal/inspect/inspect.go
// Brief: Probes the live environment behind a project's plan.

// Package inspect reports what is actually installed and running, as
// opposed to what the plan wants: installed Python distributions via
// uv and container state via docker compose.
package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// InstalledPackage is one distribution reported by uv.
type InstalledPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ContainerStatus is one service container reported by docker compose.
type ContainerStatus struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
	Image   string `json:"Image"`
}

// Inspector shells out to the project's toolchain. commandOutput is
// swapped in tests.
type Inspector struct {
	root string

	commandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New returns an inspector rooted at the project directory.
func New(root string) *Inspector {
	return &Inspector{root: root}
}

// InstalledPackages lists the distributions in the project
// environment.
func (i *Inspector) InstalledPackages(ctx context.Context) ([]InstalledPackage, error) {
	out, err := i.output(ctx, "uv", "pip", "list", "--format", "json")
	if err != nil {
		return nil, errors.Wrap(err, "uv pip list")
	}
	var pkgs []InstalledPackage
	if err := json.Unmarshal(out, &pkgs); err != nil {
		return nil, errors.Wrap(err, "parse uv pip list output")
	}
	return pkgs, nil
}

// Containers lists the compose project's containers. composeFile may
// be empty when the project has no generated compose file yet.
func (i *Inspector) Containers(ctx context.Context, composeFile string) ([]ContainerStatus, error) {
	args := []string{"compose"}
	if composeFile != "" {
		args = append(args, "-f", composeFile)
	}
	args = append(args, "ps", "--all", "--format", "json")
	out, err := i.output(ctx, "docker", args...)
	if err != nil {
		return nil, errors.Wrap(err, "docker compose ps")
	}
	return parseContainerList(out)
}

// parseContainerList accepts both output shapes docker compose has
// shipped: a JSON array, or one JSON object per line.
func parseContainerList(out []byte) ([]ContainerStatus, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []ContainerStatus
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, errors.Wrap(err, "parse container list")
		}
		return list, nil
	}
	var list []ContainerStatus
	for _, line := range strings.Split(string(trimmed), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var st ContainerStatus
		if err := json.Unmarshal([]byte(line), &st); err != nil {
			return nil, errors.Wrapf(err, "parse container line %q", line)
		}
		list = append(list, st)
	}
	return list, nil
}

func (i *Inspector) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if i.commandOutput != nil {
		return i.commandOutput(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = i.root
	return cmd.Output()
}
