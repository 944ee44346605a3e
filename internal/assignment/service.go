// Package assignment implements the operations that link tenant scope
// (company/facility/department) to devices, keeping device status and
// assignment rows consistent. Every mutation runs in one database
// transaction: a device is never left marked assigned without an assignment
// referencing it, and never referenced while marked available.
package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voltgrid/energy-server/internal/events"
	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
)

// ErrNoCompany is returned when a user-scoped operation cannot resolve the
// user's primary company.
var ErrNoCompany = errors.New("user has no company relationship")

// Service coordinates assignment mutations.
type Service struct {
	store     storage.Store
	publisher *events.Publisher
}

// NewService creates an assignment service. publisher may be nil.
func NewService(store storage.Store, publisher *events.Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// CreateParams describes a new assignment.
type CreateParams struct {
	CompanyID         uuid.UUID
	FacilityID        *uuid.UUID
	DepartmentID      *uuid.UUID
	SmartMeterID      *uuid.UUID
	EdgeGatewayID     *uuid.UUID
	LocationDetails   string
	InstallationNotes string
	ActorID           *uuid.UUID
}

// UpdateParams describes mutable assignment fields.
type UpdateParams struct {
	FacilityID        *uuid.UUID
	DepartmentID      *uuid.UUID
	LocationDetails   *string
	InstallationNotes *string
}

// Create creates an assignment and claims the referenced devices. The
// availability check and the status flip are a single conditional update
// inside the transaction, so a concurrent attempt on the same device gets
// storage.ErrConflict instead of a double assignment.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Assignment, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.GetCompany(ctx, p.CompanyID); err != nil {
		return nil, fmt.Errorf("company %s: %w", p.CompanyID, err)
	}

	a := &models.Assignment{
		CompanyID:         p.CompanyID,
		FacilityID:        p.FacilityID,
		DepartmentID:      p.DepartmentID,
		EdgeGatewayID:     p.EdgeGatewayID,
		LocationDetails:   p.LocationDetails,
		InstallationNotes: p.InstallationNotes,
	}

	if p.EdgeGatewayID != nil {
		if err := tx.ClaimEdgeGateway(ctx, *p.EdgeGatewayID); err != nil {
			return nil, fmt.Errorf("gateway %s: %w", *p.EdgeGatewayID, err)
		}
	}

	if err := tx.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	if p.SmartMeterID != nil {
		if err := tx.ClaimSmartMeter(ctx, *p.SmartMeterID); err != nil {
			return nil, fmt.Errorf("meter %s: %w", *p.SmartMeterID, err)
		}
		if err := tx.AddAssignmentMeter(ctx, a.ID, *p.SmartMeterID); err != nil {
			return nil, fmt.Errorf("link meter %s: %w", *p.SmartMeterID, err)
		}
		a.SmartMeterIDs = []uuid.UUID{*p.SmartMeterID}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if p.EdgeGatewayID != nil {
		s.publisher.DeviceAssigned(a.ID, a.CompanyID, *p.EdgeGatewayID, events.DeviceTypeEdgeGateway)
		s.audit(ctx, models.EventTypeGatewayAssigned, a, p.EdgeGatewayID, p.ActorID, "edge gateway assigned")
	}
	if p.SmartMeterID != nil {
		s.publisher.DeviceAssigned(a.ID, a.CompanyID, *p.SmartMeterID, events.DeviceTypeSmartMeter)
		s.audit(ctx, models.EventTypeAssignmentCreated, a, p.SmartMeterID, p.ActorID, "assignment created")
	} else {
		s.audit(ctx, models.EventTypeAssignmentCreated, a, nil, p.ActorID, "assignment created")
	}

	return a, nil
}

// AssignEdgeGateway creates an assignment for the user's primary company
// claiming the gateway. The facility/department scope of the relationship
// carries over to the assignment.
func (s *Service) AssignEdgeGateway(ctx context.Context, userID, gatewayID uuid.UUID, actorID *uuid.UUID) (*models.Assignment, error) {
	rels, err := s.store.ListUserCompanies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user companies: %w", err)
	}

	primary := ResolvePrimaryCompany(rels)
	if primary == nil {
		return nil, ErrNoCompany
	}

	return s.Create(ctx, CreateParams{
		CompanyID:     primary.CompanyID,
		FacilityID:    primary.FacilityID,
		DepartmentID:  primary.DepartmentID,
		EdgeGatewayID: &gatewayID,
		ActorID:       actorID,
	})
}

// AssignSmartMeters links meters to the assignment owning gatewayID. The
// batch is strictly all-or-nothing: the first unavailable or missing meter
// rolls back every claim made so far.
func (s *Service) AssignSmartMeters(ctx context.Context, gatewayID uuid.UUID, meterIDs []uuid.UUID, actorID *uuid.UUID) (*models.Assignment, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := tx.GetAssignmentByGateway(ctx, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("assignment for gateway %s: %w", gatewayID, err)
	}

	for _, meterID := range meterIDs {
		if err := tx.ClaimSmartMeter(ctx, meterID); err != nil {
			return nil, fmt.Errorf("meter %s: %w", meterID, err)
		}
		if err := tx.AddAssignmentMeter(ctx, a.ID, meterID); err != nil {
			return nil, fmt.Errorf("link meter %s: %w", meterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.SmartMeterIDs = append(a.SmartMeterIDs, meterIDs...)

	for _, meterID := range meterIDs {
		id := meterID
		s.publisher.DeviceAssigned(a.ID, a.CompanyID, id, events.DeviceTypeSmartMeter)
		s.audit(ctx, models.EventTypeMeterLinked, a, &id, actorID, "smart meter linked")
	}

	return a, nil
}

// RemoveEdgeGateway tears down the assignment that gives the user's primary
// company its claim on the gateway. All devices freed by the assignment are
// reset to available in the same transaction. A gateway owned by another
// company is reported as not found rather than revealing its owner.
func (s *Service) RemoveEdgeGateway(ctx context.Context, userID, gatewayID uuid.UUID, actorID *uuid.UUID) error {
	rels, err := s.store.ListUserCompanies(ctx, userID)
	if err != nil {
		return fmt.Errorf("list user companies: %w", err)
	}

	primary := ResolvePrimaryCompany(rels)
	if primary == nil {
		return ErrNoCompany
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := tx.GetAssignmentByGateway(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("assignment for gateway %s: %w", gatewayID, err)
	}
	if a.CompanyID != primary.CompanyID {
		return fmt.Errorf("assignment for gateway %s: %w", gatewayID, storage.ErrNotFound)
	}

	if err := s.teardown(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyReleased(a)
	s.audit(ctx, models.EventTypeGatewayReleased, a, &gatewayID, actorID, "edge gateway released")

	return nil
}

// RemoveSmartMeter unlinks a meter from the assignment owning gatewayID and
// resets it to available.
func (s *Service) RemoveSmartMeter(ctx context.Context, gatewayID, meterID uuid.UUID, actorID *uuid.UUID) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := tx.GetAssignmentByGateway(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("assignment for gateway %s: %w", gatewayID, err)
	}

	if err := s.unlinkMeter(ctx, tx, a.ID, meterID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.publisher.DeviceReleased(a.ID, a.CompanyID, meterID, events.DeviceTypeSmartMeter)
	s.audit(ctx, models.EventTypeMeterUnlinked, a, &meterID, actorID, "smart meter unlinked")

	return nil
}

// RemoveDirectSmartMeter unlinks a directly assigned meter from an
// assignment by assignment id.
func (s *Service) RemoveDirectSmartMeter(ctx context.Context, assignmentID, meterID uuid.UUID, actorID *uuid.UUID) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := tx.GetAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("assignment %s: %w", assignmentID, err)
	}

	if err := s.unlinkMeter(ctx, tx, a.ID, meterID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.publisher.DeviceReleased(a.ID, a.CompanyID, meterID, events.DeviceTypeSmartMeter)
	s.audit(ctx, models.EventTypeMeterUnlinked, a, &meterID, actorID, "smart meter unlinked")

	return nil
}

// Delete removes an assignment and resets every device it referenced to
// available. A second delete of the same id returns storage.ErrNotFound
// without touching any device status.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := tx.GetAssignment(ctx, id)
	if err != nil {
		return fmt.Errorf("assignment %s: %w", id, err)
	}

	if err := s.teardown(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifyReleased(a)
	s.audit(ctx, models.EventTypeAssignmentDeleted, a, nil, actorID, "assignment deleted")

	return nil
}

// Update changes the descriptive fields of an assignment.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams, actorID *uuid.UUID) (*models.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", id, err)
	}

	if p.FacilityID != nil {
		a.FacilityID = p.FacilityID
	}
	if p.DepartmentID != nil {
		a.DepartmentID = p.DepartmentID
	}
	if p.LocationDetails != nil {
		a.LocationDetails = *p.LocationDetails
	}
	if p.InstallationNotes != nil {
		a.InstallationNotes = *p.InstallationNotes
	}

	if err := s.store.UpdateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("update assignment: %w", err)
	}

	s.audit(ctx, models.EventTypeAssignmentUpdated, a, nil, actorID, "assignment updated")

	return a, nil
}

// teardown releases every device the assignment references and deletes the
// assignment row, all on the supplied transaction.
func (s *Service) teardown(ctx context.Context, tx storage.Store, a *models.Assignment) error {
	if a.EdgeGatewayID != nil {
		if err := tx.ReleaseEdgeGateway(ctx, *a.EdgeGatewayID); err != nil {
			return fmt.Errorf("release gateway %s: %w", *a.EdgeGatewayID, err)
		}
	}

	for _, meterID := range a.SmartMeterIDs {
		if err := tx.ReleaseSmartMeter(ctx, meterID); err != nil {
			return fmt.Errorf("release meter %s: %w", meterID, err)
		}
	}

	if err := tx.DeleteAssignment(ctx, a.ID); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}

	return nil
}

// unlinkMeter removes one meter link and resets the meter.
func (s *Service) unlinkMeter(ctx context.Context, tx storage.Store, assignmentID, meterID uuid.UUID) error {
	if err := tx.RemoveAssignmentMeter(ctx, assignmentID, meterID); err != nil {
		return fmt.Errorf("unlink meter %s: %w", meterID, err)
	}
	if err := tx.ReleaseSmartMeter(ctx, meterID); err != nil {
		return fmt.Errorf("release meter %s: %w", meterID, err)
	}
	return nil
}

func (s *Service) notifyReleased(a *models.Assignment) {
	if a.EdgeGatewayID != nil {
		s.publisher.DeviceReleased(a.ID, a.CompanyID, *a.EdgeGatewayID, events.DeviceTypeEdgeGateway)
	}
	for _, meterID := range a.SmartMeterIDs {
		s.publisher.DeviceReleased(a.ID, a.CompanyID, meterID, events.DeviceTypeSmartMeter)
	}
}

// audit records an audit event after a committed mutation. Audit writes are
// best-effort: a failure is logged, not returned.
func (s *Service) audit(ctx context.Context, eventType models.EventType, a *models.Assignment, deviceID, actorID *uuid.UUID, description string) {
	event := &models.AuditEvent{
		CompanyID:    &a.CompanyID,
		AssignmentID: &a.ID,
		DeviceID:     deviceID,
		ActorID:      actorID,
		Type:         eventType,
		Level:        models.EventLevelInfo,
		Description:  description,
	}
	if err := s.store.CreateAuditEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("Failed to record audit event")
	}
}
