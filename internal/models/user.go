package models

// Role is supplied by the authentication collaborator
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleViewer  Role = "viewer"
)

// CurrentUser identifies who performed a mutation. The workflow engine only
// uses it for history attribution.
type CurrentUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Permissions is the capability set the HTTP layer checks before calling
// into the workflow
type Permissions struct {
	CanCreate      bool `json:"canCreate"`
	CanEdit        bool `json:"canEdit"`
	CanAdvance     bool `json:"canAdvance"`
	CanDelete      bool `json:"canDelete"`
	CanViewReports bool `json:"canViewReports"`
}

// PermissionsFor returns the capability set for role. Unknown roles get none.
func PermissionsFor(role Role) Permissions {
	switch role {
	case RoleAdmin:
		return Permissions{CanCreate: true, CanEdit: true, CanAdvance: true, CanDelete: true, CanViewReports: true}
	case RoleManager:
		return Permissions{CanCreate: true, CanEdit: true, CanAdvance: true, CanViewReports: true}
	case RoleStaff:
		return Permissions{CanCreate: true, CanEdit: true, CanAdvance: true}
	default:
		return Permissions{}
	}
}
