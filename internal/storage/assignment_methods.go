package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Assignment Methods ==========

// CreateAssignment creates a new assignment
func (s *PostgresStore) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}

	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	query := `
        INSERT INTO assignments (
            id, created_at, updated_at, company_id, facility_id, department_id,
            edge_gateway_id, location_details, installation_notes
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		assignment.ID, assignment.CreatedAt, assignment.UpdatedAt,
		assignment.CompanyID, assignment.FacilityID, assignment.DepartmentID,
		assignment.EdgeGatewayID, assignment.LocationDetails,
		assignment.InstallationNotes,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetAssignment gets an assignment by ID, including its meter links
func (s *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	query := `
        SELECT id, created_at, updated_at, company_id, facility_id, department_id,
               edge_gateway_id, location_details, installation_notes
        FROM assignments
        WHERE id = $1`

	assignment := &models.Assignment{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt,
		&assignment.CompanyID, &assignment.FacilityID, &assignment.DepartmentID,
		&assignment.EdgeGatewayID, &assignment.LocationDetails,
		&assignment.InstallationNotes,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	assignment.SmartMeterIDs, err = s.ListAssignmentMeters(ctx, assignment.ID)
	if err != nil {
		return nil, err
	}

	return assignment, nil
}

// GetAssignmentByGateway gets the assignment that owns a gateway
func (s *PostgresStore) GetAssignmentByGateway(ctx context.Context, gatewayID uuid.UUID) (*models.Assignment, error) {
	query := `
        SELECT id, created_at, updated_at, company_id, facility_id, department_id,
               edge_gateway_id, location_details, installation_notes
        FROM assignments
        WHERE edge_gateway_id = $1`

	assignment := &models.Assignment{}
	err := s.getDB().QueryRowContext(ctx, query, gatewayID).Scan(
		&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt,
		&assignment.CompanyID, &assignment.FacilityID, &assignment.DepartmentID,
		&assignment.EdgeGatewayID, &assignment.LocationDetails,
		&assignment.InstallationNotes,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	assignment.SmartMeterIDs, err = s.ListAssignmentMeters(ctx, assignment.ID)
	if err != nil {
		return nil, err
	}

	return assignment, nil
}

// UpdateAssignment updates an assignment's mutable fields
func (s *PostgresStore) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now()

	query := `
        UPDATE assignments SET
            updated_at = $2, facility_id = $3, department_id = $4,
            location_details = $5, installation_notes = $6
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		assignment.ID, assignment.UpdatedAt, assignment.FacilityID,
		assignment.DepartmentID, assignment.LocationDetails,
		assignment.InstallationNotes,
	)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteAssignment deletes an assignment. Meter links go with it via
// ON DELETE CASCADE; releasing device statuses is the caller's job, inside
// the same transaction.
func (s *PostgresStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListAssignments lists assignments, optionally scoped to a company
func (s *PostgresStore) ListAssignments(ctx context.Context, companyID *uuid.UUID, limit, offset int) ([]*models.Assignment, int64, error) {
	var args []interface{}
	countQuery := `SELECT COUNT(*) FROM assignments`
	query := `
        SELECT id, created_at, updated_at, company_id, facility_id, department_id,
               edge_gateway_id, location_details, installation_notes
        FROM assignments`

	if companyID != nil {
		countQuery += ` WHERE company_id = $1`
		query += ` WHERE company_id = $1`
		args = append(args, *companyID)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, countQuery, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		assignment := &models.Assignment{}
		err := rows.Scan(
			&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt,
			&assignment.CompanyID, &assignment.FacilityID,
			&assignment.DepartmentID, &assignment.EdgeGatewayID,
			&assignment.LocationDetails, &assignment.InstallationNotes,
		)
		if err != nil {
			return nil, 0, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, assignment := range assignments {
		assignment.SmartMeterIDs, err = s.ListAssignmentMeters(ctx, assignment.ID)
		if err != nil {
			return nil, 0, err
		}
	}

	return assignments, count, nil
}

// CountAssignmentsByCompany counts assignments referencing a company
func (s *PostgresStore) CountAssignmentsByCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assignments WHERE company_id = $1", companyID,
	).Scan(&count)
	return count, err
}

// ========== Assignment Meter Link Methods ==========

// AddAssignmentMeter links a smart meter to an assignment. The unique
// constraint on smart_meter_id rejects a second link for the same meter.
func (s *PostgresStore) AddAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error {
	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO assignment_meters (assignment_id, smart_meter_id, linked_at)
         VALUES ($1, $2, $3)`,
		assignmentID, meterID, time.Now(),
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// RemoveAssignmentMeter removes a meter link
func (s *PostgresStore) RemoveAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM assignment_meters WHERE assignment_id = $1 AND smart_meter_id = $2",
		assignmentID, meterID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListAssignmentMeters lists meter ids linked to an assignment
func (s *PostgresStore) ListAssignmentMeters(ctx context.Context, assignmentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT smart_meter_id FROM assignment_meters
         WHERE assignment_id = $1 ORDER BY linked_at ASC`,
		assignmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
