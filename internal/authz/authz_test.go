package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voltgrid/energy-server/internal/models"
)

func TestCanFailsClosed(t *testing.T) {
	assert.False(t, Can(models.Role("superadmin"), PermUsersWrite))
	assert.False(t, Can(models.Role(""), PermDevicesRead))
	assert.False(t, Can(models.RoleViewer, Permission("unknown.perm")))
}

func TestAdminHoldsEveryPermission(t *testing.T) {
	perms := []Permission{
		PermDevicesRead, PermDevicesWrite,
		PermAssignmentsRead, PermAssignmentsWrite, PermAssignmentsDel,
		PermCompaniesRead, PermCompaniesWrite,
		PermUsersRead, PermUsersWrite,
		PermEventsRead,
	}
	for _, perm := range perms {
		assert.True(t, Can(models.RoleAdmin, perm), string(perm))
	}
}

func TestViewerIsReadOnly(t *testing.T) {
	assert.True(t, Can(models.RoleViewer, PermDevicesRead))
	assert.True(t, Can(models.RoleViewer, PermAssignmentsRead))

	assert.False(t, Can(models.RoleViewer, PermDevicesWrite))
	assert.False(t, Can(models.RoleViewer, PermAssignmentsWrite))
	assert.False(t, Can(models.RoleViewer, PermAssignmentsDel))
	assert.False(t, Can(models.RoleViewer, PermUsersRead))
	assert.False(t, Can(models.RoleViewer, PermEventsRead))
}

func TestOperatorCannotDeleteAssignments(t *testing.T) {
	assert.True(t, Can(models.RoleOperator, PermAssignmentsWrite))
	assert.False(t, Can(models.RoleOperator, PermAssignmentsDel))
	assert.False(t, Can(models.RoleOperator, PermUsersWrite))
}

func TestManagerIsReadOnlyOnDevices(t *testing.T) {
	assert.True(t, Can(models.RoleManager, PermDevicesRead))
	assert.False(t, Can(models.RoleManager, PermDevicesWrite))
	assert.True(t, Can(models.RoleManager, PermEventsRead))
}
