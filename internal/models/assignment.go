package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment records that a company (optionally narrowed to a facility and
// department) has a claim on one edge gateway and/or a set of smart meters.
// A device with status "assigned" is referenced by exactly one assignment;
// tearing the assignment down resets the devices to available in the same
// transaction.
type Assignment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	CompanyID    uuid.UUID  `json:"companyId" db:"company_id"`
	FacilityID   *uuid.UUID `json:"facilityId,omitempty" db:"facility_id"`
	DepartmentID *uuid.UUID `json:"departmentId,omitempty" db:"department_id"`

	EdgeGatewayID *uuid.UUID `json:"edgeGatewayId,omitempty" db:"edge_gateway_id"`

	LocationDetails   string `json:"locationDetails,omitempty" db:"location_details"`
	InstallationNotes string `json:"installationNotes,omitempty" db:"installation_notes"`

	// SmartMeterIDs is loaded from assignment_meters; not a column.
	SmartMeterIDs []uuid.UUID `json:"smartMeterIds,omitempty" db:"-"`
}

// AssignmentMeter links one smart meter to an assignment. The meter id is
// unique across the table: a meter belongs to at most one assignment.
type AssignmentMeter struct {
	AssignmentID uuid.UUID `json:"assignmentId" db:"assignment_id"`
	SmartMeterID uuid.UUID `json:"smartMeterId" db:"smart_meter_id"`
	LinkedAt     time.Time `json:"linkedAt" db:"linked_at"`
}
