package domain

import "errors"

// RoleAdmin bypasses every permission check. The match is case-insensitive
// on the exact word; synonyms and containing strings do not qualify.
const RoleAdmin = "admin"

var ErrRoleNotFound = errors.New("role definition not found")

// KnownModules lists every module of the portal a permission matrix can
// address.
var KnownModules = []string{
	"recepcion",
	"agenda",
	"laboratorio",
	"clientes",
	"cotizaciones",
	"comercial",
	"proyectos",
	"admin",
}

// ModuleAccess is the per-module slice of an effective permission matrix.
type ModuleAccess struct {
	Read   bool `json:"read" bson:"read"`
	Write  bool `json:"write" bson:"write"`
	Delete bool `json:"delete" bson:"delete"`
}

// PermissionSet maps a module name to its access flags. It is derived and
// ephemeral; it lives in the client monitor's cache and is never persisted.
type PermissionSet map[string]ModuleAccess

// Clone returns an independent copy so callers can cache the set without
// sharing mutable state with the resolver.
func (p PermissionSet) Clone() PermissionSet {
	if p == nil {
		return nil
	}
	out := make(PermissionSet, len(p))
	for m, a := range p {
		out[m] = a
	}
	return out
}

// AllModules returns a matrix granting the same access on every known module.
func AllModules(access ModuleAccess) PermissionSet {
	out := make(PermissionSet, len(KnownModules))
	for _, m := range KnownModules {
		out[m] = access
	}
	return out
}

// RoleDefinition is a stored role with its permission matrix.
type RoleDefinition struct {
	RoleID      string        `json:"role_id" bson:"_id"`
	Label       string        `json:"label" bson:"label"`
	Permissions PermissionSet `json:"permissions" bson:"permissions"`
}
