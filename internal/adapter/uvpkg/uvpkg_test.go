package uvpkg

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/example/hsm/internal/registry"
	"github.com/example/hsm/internal/resolve"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

func newTestAdapter(t *testing.T) (*Adapter, *[][]string) {
	t.Helper()
	var calls [][]string
	a := &Adapter{
		root: t.TempDir(),
		log:  zap.NewNop(),
		runCommand: func(_ context.Context, _ string, args ...string) error {
			calls = append(calls, args)
			return nil
		},
	}
	return a, &calls
}

func TestRequirementRendering(t *testing.T) {
	a := &Adapter{root: "/proj", log: zap.NewNop()}
	cases := []struct {
		name   string
		source registry.Source
		want   string
	}{
		{"pypi pinned", registry.Source{Type: "pypi", Version: ">=2.31"}, "requests>=2.31"},
		{"pypi any", registry.Source{Type: "pypi", Version: "*"}, "requests"},
		{"git with ref", registry.Source{Type: "git", URL: "https://example.com/r.git", Ref: "v1"}, "requests @ git+https://example.com/r.git@v1"},
		{"git without ref", registry.Source{Type: "git", URL: "https://example.com/r.git"}, "requests @ git+https://example.com/r.git"},
		{"local relative", registry.Source{Type: "local", Path: "packages/r"}, "requests @ file:///proj/packages/r"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.Requirement(&resolve.Component{Name: "requests", Source: tc.source})
			if err != nil {
				t.Fatalf("Requirement: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	if _, err := a.Requirement(&resolve.Component{Name: "x", Source: registry.Source{Type: "docker-image"}}); err == nil {
		t.Fatalf("expected error for uninstallable source type")
	}
}

func TestSyncWritesPyprojectAndRunsUv(t *testing.T) {
	a, calls := newTestAdapter(t)
	pyproject := filepath.Join(a.root, "pyproject.toml")
	seed := "[project]\nname = \"shop\"\nversion = \"1.0.0\"\ndependencies = [\"old\"]\n"
	if err := os.WriteFile(pyproject, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed pyproject: %v", err)
	}

	reqs := []string{"requests>=2.31", "httpx"}
	if err := a.Sync(context.Background(), reqs, true); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	raw, err := os.ReadFile(pyproject)
	if err != nil {
		t.Fatalf("read pyproject: %v", err)
	}
	var doc struct {
		Project struct {
			Name         string   `toml:"name"`
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse pyproject: %v", err)
	}
	if doc.Project.Name != "shop" {
		t.Fatalf("existing project metadata lost: %+v", doc.Project)
	}
	if !reflect.DeepEqual(doc.Project.Dependencies, reqs) {
		t.Fatalf("expected %v, got %v", reqs, doc.Project.Dependencies)
	}

	if len(*calls) != 1 || !reflect.DeepEqual((*calls)[0], []string{"sync", "--frozen"}) {
		t.Fatalf("unexpected uv invocations %v", *calls)
	}
}

func TestSyncCreatesPyprojectWhenMissing(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Sync(context.Background(), []string{"requests"}, false); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(a.root, "pyproject.toml"))
	if err != nil {
		t.Fatalf("pyproject not created: %v", err)
	}
	if !strings.Contains(string(raw), "requests") {
		t.Fatalf("dependencies missing: %s", raw)
	}
}

func TestInitLibCreatesDirectory(t *testing.T) {
	a, calls := newTestAdapter(t)
	dir := filepath.Join(a.root, "libs", "shared")
	if err := a.InitLib(context.Background(), dir); err != nil {
		t.Fatalf("InitLib: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("library dir not created: %v", err)
	}
	if !reflect.DeepEqual((*calls)[0], []string{"init", "--lib"}) {
		t.Fatalf("unexpected invocation %v", *calls)
	}
}

func TestLockAndExtraArgs(t *testing.T) {
	a, calls := newTestAdapter(t)
	a.extraArgs = []string{"--no-cache"}
	if err := a.Lock(context.Background()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !reflect.DeepEqual((*calls)[0], []string{"lock", "--no-cache"}) {
		t.Fatalf("unexpected invocation %v", *calls)
	}
}
