package common

import (
	"errors"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var ErrUnauthorized = errors.New("caller lacks required role")

// Role names a capability granted to a principal.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleLiquidator Role = "liquidator"
)

// RoleView answers membership queries at privileged entry points.
type RoleView interface {
	HasRole(addr ethcommon.Address, role Role) bool
}

// RequireRole rejects the caller unless the view grants the role. A nil
// view leaves the entry point open, mirroring Guard's nil behaviour for
// single-operator deployments.
func RequireRole(v RoleView, addr ethcommon.Address, role Role) error {
	if v == nil {
		return nil
	}
	if !v.HasRole(addr, role) {
		return ErrUnauthorized
	}
	return nil
}

// RoleRegistry is an in-memory principal-to-roles mapping.
type RoleRegistry struct {
	mu     sync.RWMutex
	grants map[ethcommon.Address]map[Role]struct{}
}

// NewRoleRegistry constructs an empty registry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{grants: make(map[ethcommon.Address]map[Role]struct{})}
}

// Grant adds the role to the principal's set.
func (r *RoleRegistry) Grant(addr ethcommon.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.grants[addr]
	if !ok {
		set = make(map[Role]struct{})
		r.grants[addr] = set
	}
	set[role] = struct{}{}
}

// Revoke removes the role from the principal's set.
func (r *RoleRegistry) Revoke(addr ethcommon.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.grants[addr]; ok {
		delete(set, role)
		if len(set) == 0 {
			delete(r.grants, addr)
		}
	}
}

// Members lists every principal holding the role, for snapshotting.
func (r *RoleRegistry) Members(role Role) []ethcommon.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ethcommon.Address
	for addr, set := range r.grants {
		if _, ok := set[role]; ok {
			out = append(out, addr)
		}
	}
	return out
}

// HasRole implements RoleView.
func (r *RoleRegistry) HasRole(addr ethcommon.Address, role Role) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.grants[addr][role]
	return ok
}
