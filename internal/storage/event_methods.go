package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Audit Event Methods ==========

// CreateAuditEvent creates an audit event
func (s *PostgresStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Level == "" {
		event.Level = models.EventLevelInfo
	}

	query := `
        INSERT INTO audit_events (
            id, created_at, company_id, assignment_id, device_id, actor_id,
            type, level, description, details
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.CompanyID, event.AssignmentID,
		event.DeviceID, event.ActorID, event.Type, event.Level,
		event.Description, event.Details,
	)

	return err
}

// ListAuditEvents lists audit events with filters
func (s *PostgresStore) ListAuditEvents(ctx context.Context, filters AuditEventFilters, limit, offset int) ([]*models.AuditEvent, int64, error) {
	var conds []string
	var args []interface{}

	addCond := func(col string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if filters.CompanyID != nil {
		addCond("company_id", *filters.CompanyID)
	}
	if filters.AssignmentID != nil {
		addCond("assignment_id", *filters.AssignmentID)
	}
	if filters.DeviceID != nil {
		addCond("device_id", *filters.DeviceID)
	}
	if filters.Type != nil {
		addCond("type", *filters.Type)
	}
	if filters.Level != nil {
		addCond("level", *filters.Level)
	}
	if filters.StartTime != nil {
		args = append(args, *filters.StartTime)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.EndTime != nil {
		args = append(args, *filters.EndTime)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + joinConds(conds)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_events"+where, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, company_id, assignment_id, device_id, actor_id,
               type, level, description, details
        FROM audit_events` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.CompanyID, &event.AssignmentID,
			&event.DeviceID, &event.ActorID, &event.Type, &event.Level,
			&event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, nil
}

func joinConds(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
