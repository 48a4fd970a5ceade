package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

var (
	readOnly   = domain.ModuleAccess{Read: true}
	readWrite  = domain.ModuleAccess{Read: true, Write: true}
	fullAccess = domain.ModuleAccess{Read: true, Write: true, Delete: true}
)

// defaultAdministrative covers role strings containing an administrative
// family keyword when no stored definition exists.
var defaultAdministrative = domain.AllModules(fullAccess)

// defaultCommercial is the fallback matrix for the commercial/sales family.
var defaultCommercial = domain.PermissionSet{
	"clientes":     readWrite,
	"cotizaciones": readWrite,
	"comercial":    readWrite,
	"proyectos":    readWrite,
	"agenda":       readOnly,
}

// defaultLabWriter is the fallback matrix for lab personnel that register
// and process samples.
var defaultLabWriter = domain.PermissionSet{
	"recepcion":   readWrite,
	"laboratorio": readWrite,
	"agenda":      readWrite,
}

// defaultLabReader is the fallback matrix for read-only lab access.
var defaultLabReader = domain.PermissionSet{
	"recepcion":   readOnly,
	"laboratorio": readOnly,
	"agenda":      readOnly,
}

// defaultMinimal is the last-resort matrix for roles matching nothing.
var defaultMinimal = domain.PermissionSet{
	"agenda": readOnly,
}

// PermissionResolver resolves a role id to an effective permission matrix
// through layered fallback: joined definition, stored definition, heuristic
// family match, minimal default. It never returns an error; any tier that
// fails degrades silently to the next one, and the tier used is logged.
type PermissionResolver struct {
	roles ports.RoleRepository
	log   zerolog.Logger
}

func NewPermissionResolver(roles ports.RoleRepository, log zerolog.Logger) *PermissionResolver {
	return &PermissionResolver{roles: roles, log: log}
}

// Resolve returns the effective matrix for roleID. joined, when non-nil, is
// a role definition already fetched alongside the profile and wins when its
// permission map is non-empty. The admin override is applied last so a
// corrupted or missing permission record can never lock out an administrator.
func (r *PermissionResolver) Resolve(ctx context.Context, roleID string, joined *domain.RoleDefinition) domain.PermissionSet {
	perms, tier := r.resolve(ctx, roleID, joined)

	if isAdminRole(roleID) {
		perms = domain.AllModules(fullAccess)
		tier = "admin_override"
	}

	r.log.Debug().
		Str("role", roleID).
		Str("tier", tier).
		Msg("permissions resolved")
	return perms
}

func (r *PermissionResolver) resolve(ctx context.Context, roleID string, joined *domain.RoleDefinition) (domain.PermissionSet, string) {
	// Tier 1: permissions embedded in the joined role definition.
	if joined != nil && len(joined.Permissions) > 0 {
		return joined.Permissions.Clone(), "joined"
	}

	// Tier 2: stored definition looked up by role id.
	if r.roles != nil && roleID != "" {
		def, err := r.roles.FindByRoleID(ctx, roleID)
		if err != nil {
			r.log.Warn().Err(err).Str("role", roleID).Msg("role lookup failed, falling back to heuristics")
		} else if len(def.Permissions) > 0 {
			return def.Permissions.Clone(), "lookup"
		}
	}

	// Tier 3: heuristic match against known role families. Historical role
	// strings are free-form and frequently accented ("Técnico", "recepción"),
	// so the match runs on a case-folded, accent-stripped form.
	folded := normalizeRole(roleID)
	switch {
	case containsAny(folded, "admin", "direccion", "gerencia"):
		return defaultAdministrative.Clone(), "heuristic"
	case containsAny(folded, "comercial", "venta", "cotiza"):
		return defaultCommercial.Clone(), "heuristic"
	case containsAny(folded, "tecnico", "quimico", "analista", "laborator"):
		return defaultLabWriter.Clone(), "heuristic"
	case containsAny(folded, "recepcion", "lectura", "consulta"):
		return defaultLabReader.Clone(), "heuristic"
	}

	// Tier 4: minimal read-only default.
	return defaultMinimal.Clone(), "default"
}

// isAdminRole implements the unconditional admin bypass. Only the exact word
// matters, case-insensitively; "administrador" or other containing strings
// go through the normal tiers.
func isAdminRole(roleID string) bool {
	return strings.EqualFold(strings.TrimSpace(roleID), domain.RoleAdmin)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeRole lower-cases and strips combining marks so "Técnico" and
// "tecnico" normalize to the same key.
func normalizeRole(roleID string) string {
	folded := strings.ToLower(strings.TrimSpace(roleID))
	stripped, _, err := transform.String(stripAccents, folded)
	if err != nil {
		return folded
	}
	return stripped
}
