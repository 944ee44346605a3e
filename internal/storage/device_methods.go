package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Smart Meter Methods ==========

// CreateSmartMeter creates a new smart meter
func (s *PostgresStore) CreateSmartMeter(ctx context.Context, meter *models.SmartMeter) error {
	if meter.ID == uuid.Nil {
		meter.ID = uuid.New()
	}
	if meter.Status == "" {
		meter.Status = models.StatusAvailable
	}

	now := time.Now()
	meter.CreatedAt = now
	meter.UpdatedAt = now

	query := `
        INSERT INTO smart_meters (
            id, created_at, updated_at, serial_number, manufacturer, model,
            firmware_version, status, metadata
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		meter.ID, meter.CreatedAt, meter.UpdatedAt, meter.SerialNumber,
		meter.Manufacturer, meter.Model, meter.FirmwareVersion, meter.Status,
		meter.Metadata,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetSmartMeter gets a smart meter by ID
func (s *PostgresStore) GetSmartMeter(ctx context.Context, id uuid.UUID) (*models.SmartMeter, error) {
	query := `
        SELECT id, created_at, updated_at, serial_number, manufacturer, model,
               firmware_version, status, last_seen_at, metadata
        FROM smart_meters
        WHERE id = $1`

	meter := &models.SmartMeter{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&meter.ID, &meter.CreatedAt, &meter.UpdatedAt, &meter.SerialNumber,
		&meter.Manufacturer, &meter.Model, &meter.FirmwareVersion,
		&meter.Status, &meter.LastSeenAt, &meter.Metadata,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return meter, err
}

// UpdateSmartMeter updates a smart meter
func (s *PostgresStore) UpdateSmartMeter(ctx context.Context, meter *models.SmartMeter) error {
	meter.UpdatedAt = time.Now()

	query := `
        UPDATE smart_meters SET
            updated_at = $2, serial_number = $3, manufacturer = $4, model = $5,
            firmware_version = $6, status = $7, last_seen_at = $8, metadata = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		meter.ID, meter.UpdatedAt, meter.SerialNumber, meter.Manufacturer,
		meter.Model, meter.FirmwareVersion, meter.Status, meter.LastSeenAt,
		meter.Metadata,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
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

// DeleteSmartMeter deletes a smart meter
func (s *PostgresStore) DeleteSmartMeter(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM smart_meters WHERE id = $1", id)
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

// ListSmartMeters lists smart meters, optionally filtered by status
func (s *PostgresStore) ListSmartMeters(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.SmartMeter, int64, error) {
	var args []interface{}
	countQuery := `SELECT COUNT(*) FROM smart_meters`
	query := `
        SELECT id, created_at, updated_at, serial_number, manufacturer, model,
               firmware_version, status, last_seen_at, metadata
        FROM smart_meters`

	if status != nil {
		countQuery += ` WHERE status = $1`
		query += ` WHERE status = $1`
		args = append(args, *status)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, countQuery, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	if status != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var meters []*models.SmartMeter
	for rows.Next() {
		meter := &models.SmartMeter{}
		err := rows.Scan(
			&meter.ID, &meter.CreatedAt, &meter.UpdatedAt, &meter.SerialNumber,
			&meter.Manufacturer, &meter.Model, &meter.FirmwareVersion,
			&meter.Status, &meter.LastSeenAt, &meter.Metadata,
		)
		if err != nil {
			return nil, 0, err
		}
		meters = append(meters, meter)
	}

	return meters, count, nil
}

// ClaimSmartMeter flips a meter from available to assigned. The conditional
// update is what prevents two concurrent assignments from both claiming the
// same meter: only one transaction sees the available row.
func (s *PostgresStore) ClaimSmartMeter(ctx context.Context, id uuid.UUID) error {
	return s.claimDevice(ctx, "smart_meters", id)
}

// ReleaseSmartMeter flips a meter from assigned back to available.
func (s *PostgresStore) ReleaseSmartMeter(ctx context.Context, id uuid.UUID) error {
	return s.releaseDevice(ctx, "smart_meters", id)
}

// claimDevice performs the conditional available->assigned update shared by
// both device tables. Returns ErrNotFound when the row is missing and
// ErrConflict when it exists in any non-available state.
func (s *PostgresStore) claimDevice(ctx context.Context, table string, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE `+table+` SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.StatusAssigned, time.Now(), models.StatusAvailable,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		var status string
		err := s.getDB().QueryRowContext(ctx,
			`SELECT status FROM `+table+` WHERE id = $1`, id,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}

	return nil
}

// releaseDevice performs the conditional assigned->available update.
func (s *PostgresStore) releaseDevice(ctx context.Context, table string, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE `+table+` SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.StatusAvailable, time.Now(), models.StatusAssigned,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		var status string
		err := s.getDB().QueryRowContext(ctx,
			`SELECT status FROM `+table+` WHERE id = $1`, id,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}

	return nil
}
