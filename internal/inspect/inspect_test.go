package inspect

import (
	"context"
	"reflect"
	"testing"
)

func fixedOutput(out string) func(context.Context, string, ...string) ([]byte, error) {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(out), nil
	}
}

func TestInstalledPackages(t *testing.T) {
	i := New("/proj")
	i.commandOutput = fixedOutput(`[{"name":"requests","version":"2.31.0"},{"name":"httpx","version":"0.27.0"}]`)

	pkgs, err := i.InstalledPackages(context.Background())
	if err != nil {
		t.Fatalf("InstalledPackages: %v", err)
	}
	want := []InstalledPackage{
		{Name: "requests", Version: "2.31.0"},
		{Name: "httpx", Version: "0.27.0"},
	}
	if !reflect.DeepEqual(pkgs, want) {
		t.Fatalf("expected %v, got %v", want, pkgs)
	}
}

func TestContainersArrayFormat(t *testing.T) {
	i := New("/proj")
	i.commandOutput = fixedOutput(`[{"Name":"shop-postgres","Service":"postgres","State":"running","Image":"postgres:16"}]`)

	got, err := i.Containers(context.Background(), "")
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if len(got) != 1 || got[0].Service != "postgres" || got[0].State != "running" {
		t.Fatalf("unexpected containers %+v", got)
	}
}

func TestContainersLineDelimitedFormat(t *testing.T) {
	i := New("/proj")
	i.commandOutput = fixedOutput(`
{"Name":"shop-postgres","Service":"postgres","State":"running"}
{"Name":"shop-redis","Service":"redis","State":"exited"}
`)

	got, err := i.Containers(context.Background(), "")
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if len(got) != 2 || got[1].State != "exited" {
		t.Fatalf("unexpected containers %+v", got)
	}
}

func TestContainersEmptyOutput(t *testing.T) {
	i := New("/proj")
	i.commandOutput = fixedOutput("\n")

	got, err := i.Containers(context.Background(), "")
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no containers, got %+v", got)
	}
}

func TestContainersMalformedLine(t *testing.T) {
	i := New("/proj")
	i.commandOutput = fixedOutput(`{"Name":"ok"}` + "\nnot json\n")

	if _, err := i.Containers(context.Background(), ""); err == nil {
		t.Fatalf("expected parse error")
	}
}
