package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrConflict     = errors.New("conflict")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)

	// User-company relationship methods
	AddUserCompany(ctx context.Context, rel *models.UserCompany) error
	RemoveUserCompany(ctx context.Context, userID, companyID uuid.UUID) error
	ListUserCompanies(ctx context.Context, userID uuid.UUID) ([]*models.UserCompany, error)

	// Company methods
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	UpdateCompany(ctx context.Context, company *models.Company) error
	DeleteCompany(ctx context.Context, id uuid.UUID) error
	ListCompanies(ctx context.Context, limit, offset int) ([]*models.Company, int64, error)

	// Facility methods
	CreateFacility(ctx context.Context, facility *models.Facility) error
	GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error)
	DeleteFacility(ctx context.Context, id uuid.UUID) error
	ListFacilities(ctx context.Context, companyID uuid.UUID) ([]*models.Facility, error)

	// Department methods
	CreateDepartment(ctx context.Context, department *models.Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*models.Department, error)
	DeleteDepartment(ctx context.Context, id uuid.UUID) error
	ListDepartments(ctx context.Context, facilityID uuid.UUID) ([]*models.Department, error)

	// Smart meter methods
	CreateSmartMeter(ctx context.Context, meter *models.SmartMeter) error
	GetSmartMeter(ctx context.Context, id uuid.UUID) (*models.SmartMeter, error)
	UpdateSmartMeter(ctx context.Context, meter *models.SmartMeter) error
	DeleteSmartMeter(ctx context.Context, id uuid.UUID) error
	ListSmartMeters(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.SmartMeter, int64, error)
	ClaimSmartMeter(ctx context.Context, id uuid.UUID) error
	ReleaseSmartMeter(ctx context.Context, id uuid.UUID) error

	// Edge gateway methods
	CreateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error
	GetEdgeGateway(ctx context.Context, id uuid.UUID) (*models.EdgeGateway, error)
	UpdateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error
	DeleteEdgeGateway(ctx context.Context, id uuid.UUID) error
	ListEdgeGateways(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.EdgeGateway, int64, error)
	ClaimEdgeGateway(ctx context.Context, id uuid.UUID) error
	ReleaseEdgeGateway(ctx context.Context, id uuid.UUID) error
	GetGatewayNetworkConfig(ctx context.Context, gatewayID uuid.UUID) (*models.GatewayNetworkConfig, error)
	SaveGatewayNetworkConfig(ctx context.Context, cfg *models.GatewayNetworkConfig) error

	// Assignment methods
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	GetAssignmentByGateway(ctx context.Context, gatewayID uuid.UUID) (*models.Assignment, error)
	UpdateAssignment(ctx context.Context, assignment *models.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	ListAssignments(ctx context.Context, companyID *uuid.UUID, limit, offset int) ([]*models.Assignment, int64, error)
	CountAssignmentsByCompany(ctx context.Context, companyID uuid.UUID) (int64, error)

	// Assignment meter link methods
	AddAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error
	RemoveAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error
	ListAssignmentMeters(ctx context.Context, assignmentID uuid.UUID) ([]uuid.UUID, error)

	// Audit event methods
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, filters AuditEventFilters, limit, offset int) ([]*models.AuditEvent, int64, error)

	// Close the store
	Close() error
}

// AuditEventFilters represents filters for audit events
type AuditEventFilters struct {
	CompanyID    *uuid.UUID
	AssignmentID *uuid.UUID
	DeviceID     *uuid.UUID
	Type         *models.EventType
	Level        *models.EventLevel
	StartTime    *time.Time
	EndTime      *time.Time
}
