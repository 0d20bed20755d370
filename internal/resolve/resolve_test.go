package resolve

import (
	"errors"
	"reflect"
	"testing"

	"github.com/example/hsm/internal/manifest"
	"github.com/example/hsm/internal/registry"
)

func mustStore(t *testing.T, components []*registry.Component, groups []*registry.Group) *registry.Store {
	t.Helper()
	s, err := registry.New(components, groups)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return s
}

func pypi(version string) registry.Sources {
	return registry.Sources{Prod: &registry.Source{Type: "pypi", Version: version}}
}

func image(img string) registry.Sources {
	return registry.Sources{Prod: &registry.Source{Type: "docker-image", Image: img}}
}

func library(name string, implies ...registry.Edge) *registry.Component {
	return &registry.Component{Name: name, Kind: registry.KindLibrary, Sources: pypi("*"), Implies: implies}
}

func service(name string, implies ...registry.Edge) *registry.Component {
	return &registry.Component{Name: name, Kind: registry.KindService, Sources: image(name + ":latest"), Implies: implies}
}

func manifestWith(libs []string, services []string) *manifest.Manifest {
	m := manifest.Default("testproj")
	for _, l := range libs {
		m.AddLibrary(l)
	}
	for _, s := range services {
		m.AddService(s)
	}
	return m
}

func noVars() VariableSource {
	return VariableFunc(func(string) (string, bool) { return "", false })
}

func TestResolveMergesImplicationsOntoSharedService(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("auth-service", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "auth_db"}}),
		service("billing-service", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "billing_db"}}),
		service("postgres"),
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"auth-service", "billing-service"}), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	merged, ok := plan.Merged["postgres"]
	if !ok {
		t.Fatalf("expected postgres to be a merged target, have %v", plan.Merged)
	}
	want := []string{"auth_db", "billing_db"}
	if !reflect.DeepEqual(merged.Params["db_name"], want) {
		t.Fatalf("expected db_name %v, got %v", want, merged.Params["db_name"])
	}
	if !reflect.DeepEqual(merged.Contributors, []string{"auth-service", "billing-service"}) {
		t.Fatalf("unexpected contributors %v", merged.Contributors)
	}
	pg, ok := plan.Component("postgres")
	if !ok {
		t.Fatalf("postgres missing from plan")
	}
	if !reflect.DeepEqual(pg.Params["db_name"], want) {
		t.Fatalf("expected params attached to postgres entry, got %v", pg.Params)
	}
}

func TestResolveMergeDeduplicatesValues(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("a", registry.Edge{Target: "cache", Collect: map[string]string{"namespace": "shared"}}),
		service("b", registry.Edge{Target: "cache", Collect: map[string]string{"namespace": "shared"}}),
		service("c", registry.Edge{Target: "cache", Collect: map[string]string{"namespace": "private"}}),
		service("cache"),
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"a", "b", "c"}), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := plan.Merged["cache"].Params["namespace"]
	want := []string{"shared", "private"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolveScalarConflict(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("a", registry.Edge{Target: "redis", Params: map[string]string{"port": "6379"}}),
		service("b", registry.Edge{Target: "redis", Params: map[string]string{"port": "6380"}}),
		service("redis"),
	}, nil)

	_, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"a", "b"}), Vars: noVars()})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Target != "redis" || conflict.Param != "port" {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if conflict.First.Source != "a" || conflict.First.Value != "6379" {
		t.Fatalf("unexpected first contribution %+v", conflict.First)
	}
	if conflict.Second.Source != "b" || conflict.Second.Value != "6380" {
		t.Fatalf("unexpected second contribution %+v", conflict.Second)
	}
}

func TestResolveScalarAgreementIsNotAConflict(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("a", registry.Edge{Target: "redis", Params: map[string]string{"port": "6379"}}),
		service("b", registry.Edge{Target: "redis", Params: map[string]string{"port": "6379"}}),
		service("redis"),
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"a", "b"}), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := plan.Merged["redis"].Scalars["port"]; got != "6379" {
		t.Fatalf("expected agreed scalar 6379, got %q", got)
	}
}

func TestResolveCycleTerminates(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("a", registry.Edge{Target: "b"}),
		service("b", registry.Edge{Target: "a"}),
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"a"}), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Services) != 2 {
		t.Fatalf("expected exactly a and b in the plan, got %d services", len(plan.Services))
	}
	if plan.Services[0].Name != "a" || plan.Services[1].Name != "b" {
		t.Fatalf("unexpected order %v, %v", plan.Services[0].Name, plan.Services[1].Name)
	}
}

func TestResolveChainedImplications(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		library("api-client", registry.Edge{Target: "api"}),
		service("api", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "api_db"}}),
		service("postgres"),
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith([]string{"api-client"}, nil), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Libraries) != 1 || len(plan.Services) != 2 {
		t.Fatalf("expected 1 library and 2 services, got %d/%d", len(plan.Libraries), len(plan.Services))
	}
	pg, _ := plan.Component("postgres")
	if !reflect.DeepEqual(pg.ImpliedBy, []string{"api"}) {
		t.Fatalf("expected postgres implied by api, got %v", pg.ImpliedBy)
	}
}

func TestResolveDeterministic(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("auth-service", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "auth_db"}}),
		service("billing-service", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "billing_db"}}),
		service("postgres"),
		library("requests"),
	}, nil)
	man := manifestWith([]string{"requests"}, []string{"auth-service", "billing-service"})

	first, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolution is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestResolveDedupesRepeatedSelection(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		library("requests"),
	}, []*registry.Group{
		{Name: "http", Kind: registry.GroupKindLibrary, Strategy: registry.StrategySingle, Options: []registry.GroupOption{{Name: "requests"}}},
	})
	man := manifestWith([]string{"requests"}, nil)
	man.SetLibraryGroup("http", []string{"requests"})

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Libraries) != 1 {
		t.Fatalf("expected one entry for requests, got %d", len(plan.Libraries))
	}
	reasons := plan.Libraries[0].SelectedBy
	if !reflect.DeepEqual(reasons, []string{"manifest", "group:http"}) {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestResolveSingleChoiceValidation(t *testing.T) {
	group := &registry.Group{
		Name:     "database-driver",
		Kind:     registry.GroupKindLibrary,
		Strategy: registry.StrategySingle,
		Options:  []registry.GroupOption{{Name: "psycopg"}, {Name: "asyncpg"}},
	}
	store := mustStore(t, []*registry.Component{library("psycopg"), library("asyncpg")}, []*registry.Group{group})

	cases := []struct {
		name      string
		selection []string
		wantErr   bool
	}{
		{name: "exactly one", selection: []string{"psycopg"}, wantErr: false},
		{name: "none", selection: nil, wantErr: true},
		{name: "two", selection: []string{"psycopg", "asyncpg"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			man := manifest.Default("p")
			man.SetLibraryGroup("database-driver", tc.selection)
			_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
			var invalid *InvalidSelectionError
			if tc.wantErr {
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidSelectionError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
		})
	}
}

func TestResolveSingleChoiceDefaultApplies(t *testing.T) {
	group := &registry.Group{
		Name:     "database-driver",
		Kind:     registry.GroupKindLibrary,
		Strategy: registry.StrategySingle,
		Options:  []registry.GroupOption{{Name: "psycopg"}, {Name: "asyncpg"}},
		Default:  []string{"psycopg"},
	}
	store := mustStore(t, []*registry.Component{library("psycopg"), library("asyncpg")}, []*registry.Group{group})
	man := manifest.Default("p")
	man.SetLibraryGroup("database-driver", nil)

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Libraries) != 1 || plan.Libraries[0].Name != "psycopg" {
		t.Fatalf("expected default psycopg, got %+v", plan.Libraries)
	}
}

func TestResolveMultiChoiceAllowsEmptySelection(t *testing.T) {
	group := &registry.Group{
		Name:     "extras",
		Kind:     registry.GroupKindLibrary,
		Strategy: registry.StrategyMulti,
		Options:  []registry.GroupOption{{Name: "rich"}},
	}
	store := mustStore(t, []*registry.Component{library("rich")}, []*registry.Group{group})
	man := manifest.Default("p")
	man.SetLibraryGroup("extras", nil)

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Libraries) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan.Libraries)
	}
}

func TestResolveUnknownOption(t *testing.T) {
	group := &registry.Group{
		Name:     "extras",
		Kind:     registry.GroupKindLibrary,
		Strategy: registry.StrategyMulti,
		Options:  []registry.GroupOption{{Name: "rich"}},
	}
	store := mustStore(t, []*registry.Component{library("rich")}, []*registry.Group{group})
	man := manifest.Default("p")
	man.SetLibraryGroup("extras", []string{"nonexistent"})

	_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	var unknown *UnknownOptionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownOptionError, got %v", err)
	}
	if unknown.Group != "extras" || unknown.Option != "nonexistent" {
		t.Fatalf("unexpected error %+v", unknown)
	}
}

func TestResolveUnknownComponent(t *testing.T) {
	store := mustStore(t, nil, nil)
	_, err := Resolve(Request{Registry: store, Manifest: manifestWith([]string{"ghost"}, nil), Vars: noVars()})
	var unknown *UnknownComponentError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownComponentError, got %v", err)
	}
	if unknown.Name != "ghost" {
		t.Fatalf("unexpected name %q", unknown.Name)
	}
}

func TestResolveUnknownGroup(t *testing.T) {
	store := mustStore(t, nil, nil)
	man := manifest.Default("p")
	man.SetLibraryGroup("ghost-group", []string{"x"})
	_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	var unknown *UnknownGroupError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownGroupError, got %v", err)
	}
}

func TestResolveMissingSource(t *testing.T) {
	// Definition declares only a prod source; selecting it in dev mode
	// must fail rather than silently fall back.
	store := mustStore(t, []*registry.Component{library("prod-only")}, nil)
	man := manifestWith([]string{"prod-only"}, nil)
	man.Project.Mode = "dev"

	_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	var missing *MissingSourceError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSourceError, got %v", err)
	}
	if missing.Component != "prod-only" || missing.Mode != registry.ModeDev {
		t.Fatalf("unexpected error %+v", missing)
	}
}

func TestResolveModeOverridePrecedence(t *testing.T) {
	dev := &registry.Source{Type: "git", URL: "https://example.com/requests.git", Ref: "main"}
	comp := &registry.Component{
		Name: "requests", Kind: registry.KindLibrary,
		Sources: registry.Sources{Prod: &registry.Source{Type: "pypi", Version: "*"}, Dev: dev},
	}
	store := mustStore(t, []*registry.Component{comp}, nil)
	man := manifest.Default("p")
	man.Dependencies.Libraries = []manifest.Entry{{Name: "requests", Mode: "dev"}}

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Libraries[0].Source.Type != "git" {
		t.Fatalf("expected per-entry dev override to pick the git source, got %+v", plan.Libraries[0].Source)
	}
}

func TestResolveInvalidMode(t *testing.T) {
	store := mustStore(t, []*registry.Component{library("requests")}, nil)
	man := manifestWith([]string{"requests"}, nil)
	man.Project.Mode = "staging"

	_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	var invalid *InvalidModeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidModeError, got %v", err)
	}
}

func TestResolveProfileSelection(t *testing.T) {
	comp := &registry.Component{
		Name: "postgres", Kind: registry.KindService,
		Sources: image("postgres:16"),
		Profiles: map[string]registry.Profile{
			"prod":  {Mode: registry.ProfileManaged},
			"cloud": {Mode: registry.ProfileExternal, Env: map[string]string{"PGHOST": "db.example.com"}},
		},
	}
	store := mustStore(t, []*registry.Component{comp}, nil)

	t.Run("mode-named profile applies", func(t *testing.T) {
		plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"postgres"}), Vars: noVars()})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		svc := plan.Services[0]
		if svc.Profile != "prod" || svc.External {
			t.Fatalf("expected managed prod profile, got %+v", svc)
		}
	})

	t.Run("explicit profile reference", func(t *testing.T) {
		man := manifest.Default("p")
		man.Services.Standalone = []manifest.Entry{{Name: "postgres", Profile: "cloud"}}
		plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		svc := plan.Services[0]
		if svc.Profile != "cloud" || !svc.External {
			t.Fatalf("expected external cloud profile, got %+v", svc)
		}
		if svc.Env["PGHOST"] != "db.example.com" {
			t.Fatalf("expected external connection env to survive, got %v", svc.Env)
		}
		if len(plan.ManagedServices()) != 0 {
			t.Fatalf("external service must not be managed")
		}
	})

	t.Run("missing explicit profile", func(t *testing.T) {
		man := manifest.Default("p")
		man.Services.Standalone = []manifest.Entry{{Name: "postgres", Profile: "onprem"}}
		_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
		var missing *MissingProfileError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingProfileError, got %v", err)
		}
		if missing.Component != "postgres" || missing.Profile != "onprem" {
			t.Fatalf("unexpected error %+v", missing)
		}
	})
}

func TestResolveInterpolation(t *testing.T) {
	comp := &registry.Component{
		Name: "api", Kind: registry.KindService,
		Sources: image("api:latest"),
		Env:     map[string]string{"API_KEY": "${API_KEY}", "LITERAL": "$${NOT_A_VAR}"},
	}
	store := mustStore(t, []*registry.Component{comp}, nil)
	man := manifestWith(nil, []string{"api"})

	t.Run("resolved", func(t *testing.T) {
		vars := VariableFunc(func(name string) (string, bool) {
			if name == "API_KEY" {
				return "secret123", true
			}
			return "", false
		})
		plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: vars})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := plan.Services[0].Env["API_KEY"]; got != "secret123" {
			t.Fatalf("expected secret123, got %q", got)
		}
		if got := plan.Services[0].Env["LITERAL"]; got != "${NOT_A_VAR}" {
			t.Fatalf("expected escaped literal, got %q", got)
		}
	})

	t.Run("unresolved", func(t *testing.T) {
		_, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
		var unresolved *UnresolvedVariableError
		if !errors.As(err, &unresolved) {
			t.Fatalf("expected UnresolvedVariableError, got %v", err)
		}
		if unresolved.Variable != "API_KEY" || unresolved.Component != "api" {
			t.Fatalf("unexpected error %+v", unresolved)
		}
	})
}

func TestResolveInterpolationIsLazy(t *testing.T) {
	// An unused definition with an unresolvable placeholder must not
	// fail resolution of a plan that never includes it.
	unused := &registry.Component{
		Name: "unused", Kind: registry.KindService,
		Sources: image("unused:latest"),
		Env:     map[string]string{"TOKEN": "${NEVER_SET}"},
	}
	store := mustStore(t, []*registry.Component{library("requests"), unused}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith([]string{"requests"}, nil), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Services) != 0 {
		t.Fatalf("unused service leaked into the plan")
	}
}

func TestResolveMergedPlaceholderPassesThrough(t *testing.T) {
	pg := &registry.Component{
		Name: "postgres", Kind: registry.KindService,
		Sources: image("postgres:16"),
		Env:     map[string]string{"POSTGRES_DBS": "${HSM_MERGED.db_name}"},
	}
	store := mustStore(t, []*registry.Component{
		service("auth-service", registry.Edge{Target: "postgres", Collect: map[string]string{"db_name": "auth_db"}}),
		pg,
	}, nil)

	plan, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"auth-service"}), Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pgRes, _ := plan.Component("postgres")
	if got := pgRes.Env["POSTGRES_DBS"]; got != "${HSM_MERGED.db_name}" {
		t.Fatalf("merged placeholder must survive interpolation, got %q", got)
	}
}

func TestResolveGroupOptionImplies(t *testing.T) {
	group := &registry.Group{
		Name:     "task-queue",
		Kind:     registry.GroupKindLibrary,
		Strategy: registry.StrategySingle,
		Options: []registry.GroupOption{
			{Name: "celery", Implies: []registry.Edge{{Target: "redis", Collect: map[string]string{"db_index": "0"}}}},
		},
	}
	store := mustStore(t, []*registry.Component{library("celery"), service("redis")}, []*registry.Group{group})
	man := manifest.Default("p")
	man.SetLibraryGroup("task-queue", []string{"celery"})

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	redis, ok := plan.Component("redis")
	if !ok {
		t.Fatalf("expected redis implied by the selected option")
	}
	if !reflect.DeepEqual(redis.ImpliedBy, []string{"celery"}) {
		t.Fatalf("unexpected impliedBy %v", redis.ImpliedBy)
	}
}

func TestResolveLibrariesPrecedeServices(t *testing.T) {
	store := mustStore(t, []*registry.Component{
		service("postgres"),
		library("requests"),
	}, nil)
	man := manifest.Default("p")
	man.AddService("postgres")
	man.AddLibrary("requests")

	plan, err := Resolve(Request{Registry: store, Manifest: man, Vars: noVars()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Libraries) != 1 || len(plan.Services) != 1 {
		t.Fatalf("unexpected plan shape %d/%d", len(plan.Libraries), len(plan.Services))
	}
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	comp := &registry.Component{
		Name: "api", Kind: registry.KindService,
		Sources: image("api:latest"),
		Env:     map[string]string{"KEY": "${VAL}"},
	}
	store := mustStore(t, []*registry.Component{comp}, nil)
	vars := VariableFunc(func(string) (string, bool) { return "resolved", true })

	if _, err := Resolve(Request{Registry: store, Manifest: manifestWith(nil, []string{"api"}), Vars: vars}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if comp.Env["KEY"] != "${VAL}" {
		t.Fatalf("resolver mutated the registry definition: %v", comp.Env)
	}
}
