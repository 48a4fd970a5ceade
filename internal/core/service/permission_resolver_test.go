package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

type stubRoleRepo struct {
	defs map[string]*domain.RoleDefinition
	err  error
}

func (r *stubRoleRepo) FindByRoleID(_ context.Context, roleID string) (*domain.RoleDefinition, error) {
	if r.err != nil {
		return nil, r.err
	}
	def, ok := r.defs[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return def, nil
}

func (r *stubRoleRepo) List(_ context.Context) ([]domain.RoleDefinition, error) {
	out := make([]domain.RoleDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, *d)
	}
	return out, nil
}

func newTestResolver(repo *stubRoleRepo) *PermissionResolver {
	return NewPermissionResolver(repo, zerolog.Nop())
}

func TestResolve_JoinedDefinitionWins(t *testing.T) {
	resolver := newTestResolver(&stubRoleRepo{err: errors.New("must not be called")})

	joined := &domain.RoleDefinition{
		RoleID: "tecnico",
		Permissions: domain.PermissionSet{
			"recepcion": {Read: true, Write: true},
			"clientes":  {},
		},
	}

	perms := resolver.Resolve(context.Background(), "tecnico", joined)
	if !perms["recepcion"].Write {
		t.Fatalf("joined permissions not returned unchanged: %+v", perms)
	}
	if perms["clientes"].Read {
		t.Fatalf("clientes should stay denied: %+v", perms["clientes"])
	}

	// The returned set must be a copy, not the caller's map.
	perms["recepcion"] = domain.ModuleAccess{}
	if !joined.Permissions["recepcion"].Write {
		t.Fatalf("resolver returned shared mutable state")
	}
}

func TestResolve_LookupTier(t *testing.T) {
	resolver := newTestResolver(&stubRoleRepo{defs: map[string]*domain.RoleDefinition{
		"vendedor": {
			RoleID:      "vendedor",
			Permissions: domain.PermissionSet{"cotizaciones": {Read: true, Write: true}},
		},
	}})

	perms := resolver.Resolve(context.Background(), "vendedor", nil)
	if !perms["cotizaciones"].Write {
		t.Fatalf("lookup tier not used: %+v", perms)
	}
}

func TestResolve_HeuristicTier(t *testing.T) {
	// Lookup fails outright; the resolver must absorb it and keep going.
	resolver := newTestResolver(&stubRoleRepo{err: errors.New("remote source down")})

	cases := []struct {
		role   string
		module string
		write  bool
	}{
		{"Técnico de Laboratorio", "recepcion", true},
		{"tecnico", "laboratorio", true},
		{"Recepción", "recepcion", false},
		{"Ventas Norte", "clientes", true},
		{"Gerencia General", "admin", true},
	}
	for _, tc := range cases {
		perms := resolver.Resolve(context.Background(), tc.role, nil)
		access, ok := perms[tc.module]
		if !ok || !access.Read {
			t.Fatalf("role %q: expected read on %s, got %+v", tc.role, tc.module, perms)
		}
		if access.Write != tc.write {
			t.Fatalf("role %q: write on %s = %v, want %v", tc.role, tc.module, access.Write, tc.write)
		}
	}
}

func TestResolve_MinimalDefault(t *testing.T) {
	resolver := newTestResolver(&stubRoleRepo{defs: map[string]*domain.RoleDefinition{}})

	perms := resolver.Resolve(context.Background(), "becario", nil)
	if !perms["agenda"].Read {
		t.Fatalf("expected read-only agenda default, got %+v", perms)
	}
	for module, access := range perms {
		if access.Write || access.Delete {
			t.Fatalf("minimal default must be read-only, %s has %+v", module, access)
		}
	}
}

func TestResolve_AdminOverride(t *testing.T) {
	// Even a stored definition that denies everything cannot lock out admin.
	resolver := newTestResolver(&stubRoleRepo{defs: map[string]*domain.RoleDefinition{
		"admin": {RoleID: "admin", Permissions: domain.PermissionSet{}},
	}})

	for _, role := range []string{"admin", "ADMIN", " Admin "} {
		perms := resolver.Resolve(context.Background(), role, nil)
		for _, module := range domain.KnownModules {
			access := perms[module]
			if !access.Read || !access.Write || !access.Delete {
				t.Fatalf("role %q: module %s not all-true: %+v", role, module, access)
			}
		}
	}
}

func TestResolve_AdminSynonymNotOverridden(t *testing.T) {
	resolver := newTestResolver(&stubRoleRepo{defs: map[string]*domain.RoleDefinition{}})

	// "administrador" goes through the heuristic tier, not the override.
	perms := resolver.Resolve(context.Background(), "administrador", nil)
	if len(perms) == 0 {
		t.Fatalf("expected a matrix for administrador")
	}
}

func TestResolve_NeverEmpty(t *testing.T) {
	resolver := newTestResolver(&stubRoleRepo{err: errors.New("down")})

	for _, role := range []string{"", "???", "x"} {
		if perms := resolver.Resolve(context.Background(), role, nil); len(perms) == 0 {
			t.Fatalf("role %q: resolver returned an empty matrix", role)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"Técnico":    "tecnico",
		"RECEPCIÓN":  "recepcion",
		"  Química ": "quimica",
		"ventas":     "ventas",
	}
	for in, want := range cases {
		if got := normalizeRole(in); got != want {
			t.Fatalf("normalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}
