// Package authz implements the access control gate: a closed role enum and
// an explicit capability table. There is no string matching against
// request-supplied role names and no privileged-id special cases; a role
// either holds a capability in the table below or the request is refused.
package authz

import "github.com/voltgrid/energy-server/internal/models"

// Permission names one guarded action.
type Permission string

const (
	PermDevicesRead      Permission = "devices.read"
	PermDevicesWrite     Permission = "devices.write"
	PermAssignmentsRead  Permission = "assignments.read"
	PermAssignmentsWrite Permission = "assignments.write"
	PermAssignmentsDel   Permission = "assignments.delete"
	PermCompaniesRead    Permission = "companies.read"
	PermCompaniesWrite   Permission = "companies.write"
	PermUsersRead        Permission = "users.read"
	PermUsersWrite       Permission = "users.write"
	PermEventsRead       Permission = "events.read"
)

// capabilities is the complete authorization policy. Admin rights are
// granted row-by-row like everyone else's so that adding a permission
// requires an explicit decision for every role.
var capabilities = map[models.Role]map[Permission]bool{
	models.RoleAdmin: {
		PermDevicesRead:      true,
		PermDevicesWrite:     true,
		PermAssignmentsRead:  true,
		PermAssignmentsWrite: true,
		PermAssignmentsDel:   true,
		PermCompaniesRead:    true,
		PermCompaniesWrite:   true,
		PermUsersRead:        true,
		PermUsersWrite:       true,
		PermEventsRead:       true,
	},
	models.RoleOperator: {
		PermDevicesRead:      true,
		PermDevicesWrite:     true,
		PermAssignmentsRead:  true,
		PermAssignmentsWrite: true,
		PermCompaniesRead:    true,
		PermUsersRead:        true,
		PermEventsRead:       true,
	},
	models.RoleManager: {
		PermDevicesRead:     true,
		PermAssignmentsRead: true,
		PermCompaniesRead:   true,
		PermUsersRead:       true,
		PermEventsRead:      true,
	},
	models.RoleViewer: {
		PermDevicesRead:     true,
		PermAssignmentsRead: true,
	},
}

// Can reports whether role holds perm. Unknown roles hold nothing.
func Can(role models.Role, perm Permission) bool {
	perms, ok := capabilities[role]
	if !ok {
		return false
	}
	return perms[perm]
}
