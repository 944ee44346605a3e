package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of user roles. Authorization decisions are made
// against the capability table in internal/authz, never by comparing raw
// strings from requests.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleViewer   Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleManager, RoleViewer:
		return true
	}
	return false
}

// User represents a system user
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Email     string `json:"email" db:"email"`
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`

	PasswordHash string `json:"-" db:"password_hash"`

	Role     Role `json:"role" db:"role"`
	IsActive bool `json:"isActive" db:"is_active"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	Settings Variables `json:"settings" db:"settings"`
}

// UserCompany represents a user-company association. A user may belong to
// several companies; at most one relationship carries IsPrimary and that one
// scopes user-level device assignments.
type UserCompany struct {
	UserID       uuid.UUID  `json:"userId" db:"user_id"`
	CompanyID    uuid.UUID  `json:"companyId" db:"company_id"`
	IsPrimary    bool       `json:"isPrimary" db:"is_primary"`
	FacilityID   *uuid.UUID `json:"facilityId,omitempty" db:"facility_id"`
	DepartmentID *uuid.UUID `json:"departmentId,omitempty" db:"department_id"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}
