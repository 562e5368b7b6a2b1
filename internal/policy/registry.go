package policy

import (
	"github.com/fitsync/platform/internal/auth"
	"github.com/fitsync/platform/internal/domain"
)

// Registry resolves a role to its session policy. The table is built once at
// construction and never mutated, so lookups are safe under concurrency.
type Registry struct {
	policies map[string]domain.SessionPolicy
	fallback domain.SessionPolicy
}

// NewRegistry builds the static role policy table. Unknown roles resolve to
// the client policy, the most restrictive consumer-facing entry.
func NewRegistry() *Registry {
	client := domain.SessionPolicy{
		Role:                 auth.RoleClient,
		MaxSessions:          3,
		MaxSessionsPerDevice: 1,
		EnforceSingleSession: false,
		AllowMultipleDevices: true,
		MaxDevices:           2,
	}

	policies := map[string]domain.SessionPolicy{
		auth.RoleClient: client,
		auth.RolePersonalTrainer: {
			Role:                 auth.RolePersonalTrainer,
			MaxSessions:          5,
			MaxSessionsPerDevice: 2,
			AllowMultipleDevices: true,
			MaxDevices:           3,
		},
		auth.RoleNutritionist: {
			Role:                 auth.RoleNutritionist,
			MaxSessions:          4,
			MaxSessionsPerDevice: 2,
			AllowMultipleDevices: true,
			MaxDevices:           3,
		},
		auth.RoleGymAdmin: {
			Role:                 auth.RoleGymAdmin,
			MaxSessions:          2,
			MaxSessionsPerDevice: 1,
			AllowMultipleDevices: true,
			MaxDevices:           2,
		},
		auth.RoleAdmin: {
			Role:                 auth.RoleAdmin,
			MaxSessions:          1,
			MaxSessionsPerDevice: 1,
			EnforceSingleSession: true,
			AllowMultipleDevices: false,
			MaxDevices:           1,
		},
		auth.RoleSuperAdmin: {
			Role:                 auth.RoleSuperAdmin,
			MaxSessions:          1,
			MaxSessionsPerDevice: 1,
			EnforceSingleSession: true,
			AllowMultipleDevices: false,
			MaxDevices:           1,
		},
	}

	return &Registry{policies: policies, fallback: client}
}

// Get returns the policy for the given role. Total: unknown roles get the
// fallback, never an error.
func (r *Registry) Get(role string) domain.SessionPolicy {
	if p, ok := r.policies[role]; ok {
		return p
	}
	return r.fallback
}
