package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Edge Gateway Methods ==========

// CreateEdgeGateway creates a new edge gateway
func (s *PostgresStore) CreateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error {
	if gateway.ID == uuid.Nil {
		gateway.ID = uuid.New()
	}
	if gateway.Status == "" {
		gateway.Status = models.StatusAvailable
	}

	now := time.Now()
	gateway.CreatedAt = now
	gateway.UpdatedAt = now

	query := `
        INSERT INTO edge_gateways (
            id, created_at, updated_at, serial_number, name, model,
            firmware_version, status, metadata
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		gateway.ID, gateway.CreatedAt, gateway.UpdatedAt, gateway.SerialNumber,
		gateway.Name, gateway.Model, gateway.FirmwareVersion, gateway.Status,
		gateway.Metadata,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetEdgeGateway gets an edge gateway by ID
func (s *PostgresStore) GetEdgeGateway(ctx context.Context, id uuid.UUID) (*models.EdgeGateway, error) {
	query := `
        SELECT id, created_at, updated_at, serial_number, name, model,
               firmware_version, status, last_seen_at, first_seen_at, metadata
        FROM edge_gateways
        WHERE id = $1`

	gateway := &models.EdgeGateway{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&gateway.ID, &gateway.CreatedAt, &gateway.UpdatedAt,
		&gateway.SerialNumber, &gateway.Name, &gateway.Model,
		&gateway.FirmwareVersion, &gateway.Status, &gateway.LastSeenAt,
		&gateway.FirstSeenAt, &gateway.Metadata,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return gateway, err
}

// UpdateEdgeGateway updates an edge gateway
func (s *PostgresStore) UpdateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error {
	gateway.UpdatedAt = time.Now()

	query := `
        UPDATE edge_gateways SET
            updated_at = $2, serial_number = $3, name = $4, model = $5,
            firmware_version = $6, status = $7, last_seen_at = $8,
            first_seen_at = $9, metadata = $10
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		gateway.ID, gateway.UpdatedAt, gateway.SerialNumber, gateway.Name,
		gateway.Model, gateway.FirmwareVersion, gateway.Status,
		gateway.LastSeenAt, gateway.FirstSeenAt, gateway.Metadata,
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

// DeleteEdgeGateway deletes an edge gateway
func (s *PostgresStore) DeleteEdgeGateway(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM edge_gateways WHERE id = $1", id)
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

// ListEdgeGateways lists edge gateways, optionally filtered by status
func (s *PostgresStore) ListEdgeGateways(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.EdgeGateway, int64, error) {
	var args []interface{}
	countQuery := `SELECT COUNT(*) FROM edge_gateways`
	query := `
        SELECT id, created_at, updated_at, serial_number, name, model,
               firmware_version, status, last_seen_at, first_seen_at, metadata
        FROM edge_gateways`

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

	var gateways []*models.EdgeGateway
	for rows.Next() {
		gateway := &models.EdgeGateway{}
		err := rows.Scan(
			&gateway.ID, &gateway.CreatedAt, &gateway.UpdatedAt,
			&gateway.SerialNumber, &gateway.Name, &gateway.Model,
			&gateway.FirmwareVersion, &gateway.Status, &gateway.LastSeenAt,
			&gateway.FirstSeenAt, &gateway.Metadata,
		)
		if err != nil {
			return nil, 0, err
		}
		gateways = append(gateways, gateway)
	}

	return gateways, count, nil
}

// ClaimEdgeGateway flips a gateway from available to assigned.
func (s *PostgresStore) ClaimEdgeGateway(ctx context.Context, id uuid.UUID) error {
	return s.claimDevice(ctx, "edge_gateways", id)
}

// ReleaseEdgeGateway flips a gateway from assigned back to available.
func (s *PostgresStore) ReleaseEdgeGateway(ctx context.Context, id uuid.UUID) error {
	return s.releaseDevice(ctx, "edge_gateways", id)
}

// ========== Gateway Network Config Methods ==========

// GetGatewayNetworkConfig gets the network config sub-record of a gateway
func (s *PostgresStore) GetGatewayNetworkConfig(ctx context.Context, gatewayID uuid.UUID) (*models.GatewayNetworkConfig, error) {
	query := `
        SELECT gateway_id, updated_at, ip_address, subnet_mask, gateway_address,
               cpu_model, memory_mb, conn_username, conn_secret
        FROM gateway_network_configs
        WHERE gateway_id = $1`

	cfg := &models.GatewayNetworkConfig{}
	err := s.getDB().QueryRowContext(ctx, query, gatewayID).Scan(
		&cfg.GatewayID, &cfg.UpdatedAt, &cfg.IPAddress, &cfg.SubnetMask,
		&cfg.GatewayAddress, &cfg.CPUModel, &cfg.MemoryMB,
		&cfg.ConnUsername, &cfg.ConnSecret,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return cfg, err
}

// SaveGatewayNetworkConfig upserts the network config sub-record
func (s *PostgresStore) SaveGatewayNetworkConfig(ctx context.Context, cfg *models.GatewayNetworkConfig) error {
	cfg.UpdatedAt = time.Now()

	query := `
        INSERT INTO gateway_network_configs (
            gateway_id, updated_at, ip_address, subnet_mask, gateway_address,
            cpu_model, memory_mb, conn_username, conn_secret
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (gateway_id) DO UPDATE SET
            updated_at = EXCLUDED.updated_at,
            ip_address = EXCLUDED.ip_address,
            subnet_mask = EXCLUDED.subnet_mask,
            gateway_address = EXCLUDED.gateway_address,
            cpu_model = EXCLUDED.cpu_model,
            memory_mb = EXCLUDED.memory_mb,
            conn_username = EXCLUDED.conn_username,
            conn_secret = EXCLUDED.conn_secret`

	_, err := s.getDB().ExecContext(ctx, query,
		cfg.GatewayID, cfg.UpdatedAt, cfg.IPAddress, cfg.SubnetMask,
		cfg.GatewayAddress, cfg.CPUModel, cfg.MemoryMB,
		cfg.ConnUsername, cfg.ConnSecret,
	)

	return err
}
