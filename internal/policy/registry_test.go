package policy

import (
	"testing"

	"github.com/fitsync/platform/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_KnownRoles(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		role            string
		wantMaxSessions int
		wantSingle      bool
	}{
		{auth.RoleClient, 3, false},
		{auth.RolePersonalTrainer, 5, false},
		{auth.RoleNutritionist, 4, false},
		{auth.RoleGymAdmin, 2, false},
		{auth.RoleAdmin, 1, true},
		{auth.RoleSuperAdmin, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			p := r.Get(tt.role)
			assert.Equal(t, tt.role, p.Role)
			assert.Equal(t, tt.wantMaxSessions, p.MaxSessions)
			assert.Equal(t, tt.wantSingle, p.EnforceSingleSession)
		})
	}
}

func TestRegistry_UnknownRoleGetsFallback(t *testing.T) {
	r := NewRegistry()

	for _, role := range []string{"", "guest", "ADMIN", "service-account"} {
		p := r.Get(role)
		assert.Equal(t, auth.RoleClient, p.Role, "role %q must resolve to the client policy", role)
		assert.Equal(t, 3, p.MaxSessions)
		assert.False(t, p.EnforceSingleSession)
	}
}

func TestRegistry_AdminTiersEnforceSingleSession(t *testing.T) {
	r := NewRegistry()

	for _, role := range []string{auth.RoleAdmin, auth.RoleSuperAdmin} {
		p := r.Get(role)
		assert.True(t, p.EnforceSingleSession)
		assert.False(t, p.AllowMultipleDevices)
		assert.Equal(t, 1, p.MaxDevices)
	}
}
