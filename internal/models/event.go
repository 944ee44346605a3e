package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent represents an audit log entry
type AuditEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	CompanyID    *uuid.UUID `json:"companyId,omitempty" db:"company_id"`
	AssignmentID *uuid.UUID `json:"assignmentId,omitempty" db:"assignment_id"`
	DeviceID     *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`
	ActorID      *uuid.UUID `json:"actorId,omitempty" db:"actor_id"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Assignment events
	EventTypeAssignmentCreated EventType = "ASSIGNMENT_CREATED"
	EventTypeAssignmentUpdated EventType = "ASSIGNMENT_UPDATED"
	EventTypeAssignmentDeleted EventType = "ASSIGNMENT_DELETED"
	EventTypeMeterLinked       EventType = "METER_LINKED"
	EventTypeMeterUnlinked     EventType = "METER_UNLINKED"
	EventTypeGatewayAssigned   EventType = "GATEWAY_ASSIGNED"
	EventTypeGatewayReleased   EventType = "GATEWAY_RELEASED"

	// Device events
	EventTypeDeviceStatusChanged EventType = "DEVICE_STATUS_CHANGED"

	// System events
	EventTypeCompanyDeleted EventType = "COMPANY_DELETED"
	EventTypeUserLogin      EventType = "USER_LOGIN"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
