package storage

import "context"

// schema is applied on startup. Statements are idempotent so restarting the
// server against an existing database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'viewer',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		settings JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS companies (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		billing_email TEXT NOT NULL DEFAULT '',
		billing_plan TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		suspended_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS facilities (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS departments (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		facility_id UUID NOT NULL REFERENCES facilities(id) ON DELETE CASCADE,
		name TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_companies (
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		facility_id UUID REFERENCES facilities(id),
		department_id UUID REFERENCES departments(id),
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, company_id)
	)`,

	`CREATE TABLE IF NOT EXISTS smart_meters (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		serial_number TEXT NOT NULL UNIQUE,
		manufacturer TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'available',
		last_seen_at TIMESTAMPTZ,
		metadata JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS edge_gateways (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		serial_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'available',
		last_seen_at TIMESTAMPTZ,
		first_seen_at TIMESTAMPTZ,
		metadata JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS gateway_network_configs (
		gateway_id UUID PRIMARY KEY REFERENCES edge_gateways(id) ON DELETE CASCADE,
		updated_at TIMESTAMPTZ NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		subnet_mask TEXT NOT NULL DEFAULT '',
		gateway_address TEXT NOT NULL DEFAULT '',
		cpu_model TEXT NOT NULL DEFAULT '',
		memory_mb INTEGER NOT NULL DEFAULT 0,
		conn_username TEXT NOT NULL DEFAULT '',
		conn_secret TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		company_id UUID NOT NULL REFERENCES companies(id),
		facility_id UUID REFERENCES facilities(id),
		department_id UUID REFERENCES departments(id),
		edge_gateway_id UUID UNIQUE REFERENCES edge_gateways(id),
		location_details TEXT NOT NULL DEFAULT '',
		installation_notes TEXT NOT NULL DEFAULT ''
	)`,

	// smart_meter_id is unique: a meter belongs to at most one assignment.
	`CREATE TABLE IF NOT EXISTS assignment_meters (
		assignment_id UUID NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
		smart_meter_id UUID NOT NULL UNIQUE REFERENCES smart_meters(id),
		linked_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (assignment_id, smart_meter_id)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		company_id UUID,
		assignment_id UUID,
		device_id UUID,
		actor_id UUID,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		details JSONB
	)`,

	`CREATE INDEX IF NOT EXISTS idx_assignments_company ON assignments(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_company ON audit_events(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at)`,
}

// Migrate creates the schema
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.getDB().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
