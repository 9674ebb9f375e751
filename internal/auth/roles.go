package auth

// Admin role constants.
const (
	RoleViewer     = "viewer"
	RoleOperator   = "operator"
	RoleSuperAdmin = "superadmin"
)

// AllAdminRoles returns all valid admin roles.
func AllAdminRoles() []string {
	return []string{RoleViewer, RoleOperator, RoleSuperAdmin}
}

// WriteRoles returns roles that can move money: adjust wallets, create and distribute pools.
func WriteRoles() []string {
	return []string{RoleOperator, RoleSuperAdmin}
}
