package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Company Methods ==========

// CreateCompany creates a new company
func (s *PostgresStore) CreateCompany(ctx context.Context, company *models.Company) error {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}

	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	query := `
        INSERT INTO companies (
            id, created_at, updated_at, name, description, contact_email,
            contact_phone, billing_email, billing_plan, is_active
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		company.ID, company.CreatedAt, company.UpdatedAt, company.Name,
		company.Description, company.ContactEmail, company.ContactPhone,
		company.BillingEmail, company.BillingPlan, company.IsActive,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetCompany gets a company by ID
func (s *PostgresStore) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	query := `
        SELECT id, created_at, updated_at, name, description, contact_email,
               contact_phone, billing_email, billing_plan, is_active, suspended_at
        FROM companies
        WHERE id = $1`

	company := &models.Company{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&company.ID, &company.CreatedAt, &company.UpdatedAt, &company.Name,
		&company.Description, &company.ContactEmail, &company.ContactPhone,
		&company.BillingEmail, &company.BillingPlan, &company.IsActive,
		&company.SuspendedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return company, err
}

// UpdateCompany updates a company
func (s *PostgresStore) UpdateCompany(ctx context.Context, company *models.Company) error {
	company.UpdatedAt = time.Now()

	query := `
        UPDATE companies SET
            updated_at = $2, name = $3, description = $4, contact_email = $5,
            contact_phone = $6, billing_email = $7, billing_plan = $8,
            is_active = $9, suspended_at = $10
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		company.ID, company.UpdatedAt, company.Name, company.Description,
		company.ContactEmail, company.ContactPhone, company.BillingEmail,
		company.BillingPlan, company.IsActive, company.SuspendedAt,
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

// DeleteCompany deletes a company. A company with active assignments cannot
// be deleted. The assignment check and the delete run as one statement so a
// concurrent assignment cannot slip in between them; an assignment committed
// after the statement's snapshot surfaces as a foreign key violation, which
// is the same conflict.
func (s *PostgresStore) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `
        DELETE FROM companies
        WHERE id = $1
          AND NOT EXISTS (SELECT 1 FROM assignments WHERE company_id = $1)`, id)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return ErrConflict
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		var exists bool
		err := s.getDB().QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)", id,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	return nil
}

// ListCompanies lists companies
func (s *PostgresStore) ListCompanies(ctx context.Context, limit, offset int) ([]*models.Company, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM companies").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, updated_at, name, description, contact_email,
               contact_phone, billing_email, billing_plan, is_active, suspended_at
        FROM companies
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		company := &models.Company{}
		err := rows.Scan(
			&company.ID, &company.CreatedAt, &company.UpdatedAt, &company.Name,
			&company.Description, &company.ContactEmail, &company.ContactPhone,
			&company.BillingEmail, &company.BillingPlan, &company.IsActive,
			&company.SuspendedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		companies = append(companies, company)
	}

	return companies, count, nil
}

// ========== Facility Methods ==========

// CreateFacility creates a new facility
func (s *PostgresStore) CreateFacility(ctx context.Context, facility *models.Facility) error {
	if facility.ID == uuid.Nil {
		facility.ID = uuid.New()
	}

	now := time.Now()
	facility.CreatedAt = now
	facility.UpdatedAt = now

	query := `
        INSERT INTO facilities (id, created_at, updated_at, company_id, name, address)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.getDB().ExecContext(ctx, query,
		facility.ID, facility.CreatedAt, facility.UpdatedAt,
		facility.CompanyID, facility.Name, facility.Address,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetFacility gets a facility by ID
func (s *PostgresStore) GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	query := `
        SELECT id, created_at, updated_at, company_id, name, address
        FROM facilities
        WHERE id = $1`

	facility := &models.Facility{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&facility.ID, &facility.CreatedAt, &facility.UpdatedAt,
		&facility.CompanyID, &facility.Name, &facility.Address,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return facility, err
}

// DeleteFacility deletes a facility
func (s *PostgresStore) DeleteFacility(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM facilities WHERE id = $1", id)
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

// ListFacilities lists facilities of a company
func (s *PostgresStore) ListFacilities(ctx context.Context, companyID uuid.UUID) ([]*models.Facility, error) {
	query := `
        SELECT id, created_at, updated_at, company_id, name, address
        FROM facilities
        WHERE company_id = $1
        ORDER BY created_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facilities []*models.Facility
	for rows.Next() {
		facility := &models.Facility{}
		err := rows.Scan(
			&facility.ID, &facility.CreatedAt, &facility.UpdatedAt,
			&facility.CompanyID, &facility.Name, &facility.Address,
		)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, facility)
	}

	return facilities, nil
}

// ========== Department Methods ==========

// CreateDepartment creates a new department
func (s *PostgresStore) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == uuid.Nil {
		department.ID = uuid.New()
	}

	now := time.Now()
	department.CreatedAt = now
	department.UpdatedAt = now

	query := `
        INSERT INTO departments (id, created_at, updated_at, facility_id, name)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := s.getDB().ExecContext(ctx, query,
		department.ID, department.CreatedAt, department.UpdatedAt,
		department.FacilityID, department.Name,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDepartment gets a department by ID
func (s *PostgresStore) GetDepartment(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	query := `
        SELECT id, created_at, updated_at, facility_id, name
        FROM departments
        WHERE id = $1`

	department := &models.Department{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&department.ID, &department.CreatedAt, &department.UpdatedAt,
		&department.FacilityID, &department.Name,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return department, err
}

// DeleteDepartment deletes a department
func (s *PostgresStore) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM departments WHERE id = $1", id)
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

// ListDepartments lists departments of a facility
func (s *PostgresStore) ListDepartments(ctx context.Context, facilityID uuid.UUID) ([]*models.Department, error) {
	query := `
        SELECT id, created_at, updated_at, facility_id, name
        FROM departments
        WHERE facility_id = $1
        ORDER BY created_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []*models.Department
	for rows.Next() {
		department := &models.Department{}
		err := rows.Scan(
			&department.ID, &department.CreatedAt, &department.UpdatedAt,
			&department.FacilityID, &department.Name,
		)
		if err != nil {
			return nil, err
		}
		departments = append(departments, department)
	}

	return departments, nil
}
