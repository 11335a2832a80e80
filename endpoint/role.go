package endpoint

import (
	"fmt"

	"github.com/c360/tradeline/errors"
)

// Role names a slot in the pipeline topology. Each role is bound to one
// endpoint for the lifetime of a run.
type Role string

// Pipeline roles in wiring order.
const (
	RoleSync   Role = "sync"
	RoleData   Role = "data"
	RoleFeed   Role = "feed"
	RoleMerge  Role = "merge"
	RoleResult Role = "result"
	RoleOrder  Role = "order"
)

// Roles returns all pipeline roles in their canonical binding order. The
// order matters: NewRoleMap binds leased endpoints to roles positionally.
func Roles() []Role {
	return []Role{RoleSync, RoleData, RoleFeed, RoleMerge, RoleResult, RoleOrder}
}

// RoleMap binds each pipeline role to its endpoint.
type RoleMap map[Role]Endpoint

// NewRoleMap binds endpoints to roles positionally. It requires exactly one
// endpoint per role and rejects duplicate endpoints, since two roles sharing
// a subject would cross-deliver pipeline traffic.
func NewRoleMap(eps []Endpoint) (RoleMap, error) {
	roles := Roles()
	if len(eps) != len(roles) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("need %d endpoints for %d roles, got %d", len(roles), len(roles), len(eps)),
			"RoleMap", "NewRoleMap", "endpoint count check")
	}

	rm := make(RoleMap, len(roles))
	seen := make(map[string]Role, len(roles))
	for i, role := range roles {
		ep := eps[i]
		if !ep.Valid() {
			return nil, errors.WrapInvalid(
				fmt.Errorf("endpoint for role %q is zero-valued", role),
				"RoleMap", "NewRoleMap", "endpoint validation")
		}
		if prev, dup := seen[ep.Subject()]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("endpoint %s bound to both %q and %q", ep, prev, role),
				"RoleMap", "NewRoleMap", "endpoint distinctness check")
		}
		seen[ep.Subject()] = role
		rm[role] = ep
	}

	return rm, nil
}

// Subject returns the transport subject for a role.
func (rm RoleMap) Subject(role Role) string {
	return rm[role].Subject()
}

// Validate checks that every pipeline role is bound to a valid endpoint.
func (rm RoleMap) Validate() error {
	for _, role := range Roles() {
		ep, ok := rm[role]
		if !ok || !ep.Valid() {
			return errors.WrapInvalid(
				fmt.Errorf("role %q has no endpoint", role),
				"RoleMap", "Validate", "role binding check")
		}
	}
	return nil
}

// Endpoints returns the bound endpoints in canonical role order.
func (rm RoleMap) Endpoints() []Endpoint {
	eps := make([]Endpoint, 0, len(rm))
	for _, role := range Roles() {
		if ep, ok := rm[role]; ok {
			eps = append(eps, ep)
		}
	}
	return eps
}
