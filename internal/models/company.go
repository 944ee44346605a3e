package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is the tenant root entity. Facilities and departments nest under
// it and every assignment is scoped to exactly one company.
type Company struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name         string `json:"name" db:"name"`
	Description  string `json:"description" db:"description"`
	ContactEmail string `json:"contactEmail,omitempty" db:"contact_email"`
	ContactPhone string `json:"contactPhone,omitempty" db:"contact_phone"`

	BillingEmail string `json:"billingEmail,omitempty" db:"billing_email"`
	BillingPlan  string `json:"billingPlan,omitempty" db:"billing_plan"`

	IsActive    bool       `json:"isActive" db:"is_active"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty" db:"suspended_at"`
}

// Facility belongs to exactly one company.
type Facility struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	CompanyID uuid.UUID `json:"companyId" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address,omitempty" db:"address"`
}

// Department belongs to exactly one facility.
type Department struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	FacilityID uuid.UUID `json:"facilityId" db:"facility_id"`
	Name       string    `json:"name" db:"name"`
}
