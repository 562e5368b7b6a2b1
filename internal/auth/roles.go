package auth

// Platform role constants. Roles carry the session policy a user falls under.
const (
	RoleClient          = "client"
	RolePersonalTrainer = "personal_trainer"
	RoleNutritionist    = "nutritionist"
	RoleGymAdmin        = "gym_admin"
	RoleAdmin           = "admin"
	RoleSuperAdmin      = "superadmin"
)

// AllRoles returns every valid platform role.
func AllRoles() []string {
	return []string{RoleClient, RolePersonalTrainer, RoleNutritionist, RoleGymAdmin, RoleAdmin, RoleSuperAdmin}
}

// AdminRoles returns roles allowed on the admin surface.
func AdminRoles() []string {
	return []string{RoleAdmin, RoleSuperAdmin}
}
