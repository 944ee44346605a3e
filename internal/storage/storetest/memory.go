// Package storetest provides an in-memory storage.Store for tests.
// Transactions are copy-on-write: BeginTx clones the state, Commit swaps
// the clone back in, Rollback discards it. That is enough to verify the
// all-or-nothing behavior of the assignment service without a database.
package storetest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
)

type state struct {
	users            map[uuid.UUID]*models.User
	userCompanies    []*models.UserCompany
	companies        map[uuid.UUID]*models.Company
	facilities       map[uuid.UUID]*models.Facility
	departments      map[uuid.UUID]*models.Department
	meters           map[uuid.UUID]*models.SmartMeter
	gateways         map[uuid.UUID]*models.EdgeGateway
	gatewayConfigs   map[uuid.UUID]*models.GatewayNetworkConfig
	assignments      map[uuid.UUID]*models.Assignment
	assignmentMeters []*models.AssignmentMeter
	events           []*models.AuditEvent
}

func newState() *state {
	return &state{
		users:          make(map[uuid.UUID]*models.User),
		companies:      make(map[uuid.UUID]*models.Company),
		facilities:     make(map[uuid.UUID]*models.Facility),
		departments:    make(map[uuid.UUID]*models.Department),
		meters:         make(map[uuid.UUID]*models.SmartMeter),
		gateways:       make(map[uuid.UUID]*models.EdgeGateway),
		gatewayConfigs: make(map[uuid.UUID]*models.GatewayNetworkConfig),
		assignments:    make(map[uuid.UUID]*models.Assignment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for _, v := range s.userCompanies {
		r := *v
		c.userCompanies = append(c.userCompanies, &r)
	}
	for k, v := range s.companies {
		o := *v
		c.companies[k] = &o
	}
	for k, v := range s.facilities {
		o := *v
		c.facilities[k] = &o
	}
	for k, v := range s.departments {
		o := *v
		c.departments[k] = &o
	}
	for k, v := range s.meters {
		o := *v
		c.meters[k] = &o
	}
	for k, v := range s.gateways {
		o := *v
		c.gateways[k] = &o
	}
	for k, v := range s.gatewayConfigs {
		o := *v
		c.gatewayConfigs[k] = &o
	}
	for k, v := range s.assignments {
		o := *v
		c.assignments[k] = &o
	}
	for _, v := range s.assignmentMeters {
		l := *v
		c.assignmentMeters = append(c.assignmentMeters, &l)
	}
	c.events = append(c.events, s.events...)
	return c
}

// MemoryStore is an in-memory storage.Store.
type MemoryStore struct {
	state  *state
	parent *MemoryStore
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newState()}
}

// BeginTx starts a copy-on-write transaction.
func (m *MemoryStore) BeginTx(ctx context.Context) (storage.Store, error) {
	return &MemoryStore{state: m.state.clone(), parent: m}, nil
}

// Commit swaps the working copy into the parent.
func (m *MemoryStore) Commit() error {
	if m.parent != nil {
		m.parent.state = m.state
	}
	return nil
}

// Rollback discards the working copy.
func (m *MemoryStore) Rollback() error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// ========== Users ==========

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, u := range m.state.users {
		if u.Email == user.Email {
			return storage.ErrDuplicateKey
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	u := *user
	m.state.users[user.ID] = &u
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.state.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.state.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	if _, ok := m.state.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	u := *user
	m.state.users[user.ID] = &u
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.users, id)
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error) {
	var users []*models.User
	for _, u := range m.state.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return paginate(users, limit, offset), int64(len(m.state.users)), nil
}

// ========== User-company relationships ==========

func (m *MemoryStore) AddUserCompany(ctx context.Context, rel *models.UserCompany) error {
	for _, r := range m.state.userCompanies {
		if r.UserID == rel.UserID && r.CompanyID == rel.CompanyID {
			return storage.ErrDuplicateKey
		}
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	r := *rel
	m.state.userCompanies = append(m.state.userCompanies, &r)
	return nil
}

func (m *MemoryStore) RemoveUserCompany(ctx context.Context, userID, companyID uuid.UUID) error {
	for i, r := range m.state.userCompanies {
		if r.UserID == userID && r.CompanyID == companyID {
			m.state.userCompanies = append(m.state.userCompanies[:i], m.state.userCompanies[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *MemoryStore) ListUserCompanies(ctx context.Context, userID uuid.UUID) ([]*models.UserCompany, error) {
	var rels []*models.UserCompany
	for _, r := range m.state.userCompanies {
		if r.UserID == userID {
			out := *r
			rels = append(rels, &out)
		}
	}
	return rels, nil
}

// ========== Companies ==========

func (m *MemoryStore) CreateCompany(ctx context.Context, company *models.Company) error {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	for _, c := range m.state.companies {
		if c.Name == company.Name {
			return storage.ErrDuplicateKey
		}
	}
	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now
	c := *company
	m.state.companies[company.ID] = &c
	return nil
}

func (m *MemoryStore) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	c, ok := m.state.companies[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *MemoryStore) UpdateCompany(ctx context.Context, company *models.Company) error {
	if _, ok := m.state.companies[company.ID]; !ok {
		return storage.ErrNotFound
	}
	company.UpdatedAt = time.Now()
	c := *company
	m.state.companies[company.ID] = &c
	return nil
}

func (m *MemoryStore) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	count, _ := m.CountAssignmentsByCompany(ctx, id)
	if count > 0 {
		return storage.ErrConflict
	}
	if _, ok := m.state.companies[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.companies, id)
	return nil
}

func (m *MemoryStore) ListCompanies(ctx context.Context, limit, offset int) ([]*models.Company, int64, error) {
	var companies []*models.Company
	for _, c := range m.state.companies {
		out := *c
		companies = append(companies, &out)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].CreatedAt.After(companies[j].CreatedAt) })
	return paginate(companies, limit, offset), int64(len(m.state.companies)), nil
}

// ========== Facilities ==========

func (m *MemoryStore) CreateFacility(ctx context.Context, facility *models.Facility) error {
	if facility.ID == uuid.Nil {
		facility.ID = uuid.New()
	}
	now := time.Now()
	facility.CreatedAt = now
	facility.UpdatedAt = now
	f := *facility
	m.state.facilities[facility.ID] = &f
	return nil
}

func (m *MemoryStore) GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	f, ok := m.state.facilities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) DeleteFacility(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.facilities[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.facilities, id)
	return nil
}

func (m *MemoryStore) ListFacilities(ctx context.Context, companyID uuid.UUID) ([]*models.Facility, error) {
	var facilities []*models.Facility
	for _, f := range m.state.facilities {
		if f.CompanyID == companyID {
			out := *f
			facilities = append(facilities, &out)
		}
	}
	sort.Slice(facilities, func(i, j int) bool { return facilities[i].CreatedAt.Before(facilities[j].CreatedAt) })
	return facilities, nil
}

// ========== Departments ==========

func (m *MemoryStore) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == uuid.Nil {
		department.ID = uuid.New()
	}
	now := time.Now()
	department.CreatedAt = now
	department.UpdatedAt = now
	d := *department
	m.state.departments[department.ID] = &d
	return nil
}

func (m *MemoryStore) GetDepartment(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	d, ok := m.state.departments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *MemoryStore) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.departments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.departments, id)
	return nil
}

func (m *MemoryStore) ListDepartments(ctx context.Context, facilityID uuid.UUID) ([]*models.Department, error) {
	var departments []*models.Department
	for _, d := range m.state.departments {
		if d.FacilityID == facilityID {
			out := *d
			departments = append(departments, &out)
		}
	}
	sort.Slice(departments, func(i, j int) bool { return departments[i].CreatedAt.Before(departments[j].CreatedAt) })
	return departments, nil
}

// ========== Smart meters ==========

func (m *MemoryStore) CreateSmartMeter(ctx context.Context, meter *models.SmartMeter) error {
	if meter.ID == uuid.Nil {
		meter.ID = uuid.New()
	}
	if meter.Status == "" {
		meter.Status = models.StatusAvailable
	}
	for _, sm := range m.state.meters {
		if sm.SerialNumber == meter.SerialNumber {
			return storage.ErrDuplicateKey
		}
	}
	now := time.Now()
	meter.CreatedAt = now
	meter.UpdatedAt = now
	sm := *meter
	m.state.meters[meter.ID] = &sm
	return nil
}

func (m *MemoryStore) GetSmartMeter(ctx context.Context, id uuid.UUID) (*models.SmartMeter, error) {
	sm, ok := m.state.meters[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *sm
	return &out, nil
}

func (m *MemoryStore) UpdateSmartMeter(ctx context.Context, meter *models.SmartMeter) error {
	if _, ok := m.state.meters[meter.ID]; !ok {
		return storage.ErrNotFound
	}
	meter.UpdatedAt = time.Now()
	sm := *meter
	m.state.meters[meter.ID] = &sm
	return nil
}

func (m *MemoryStore) DeleteSmartMeter(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.meters[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.meters, id)
	return nil
}

func (m *MemoryStore) ListSmartMeters(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.SmartMeter, int64, error) {
	var meters []*models.SmartMeter
	for _, sm := range m.state.meters {
		if status != nil && sm.Status != *status {
			continue
		}
		out := *sm
		meters = append(meters, &out)
	}
	sort.Slice(meters, func(i, j int) bool { return meters[i].CreatedAt.After(meters[j].CreatedAt) })
	total := int64(len(meters))
	return paginate(meters, limit, offset), total, nil
}

func (m *MemoryStore) ClaimSmartMeter(ctx context.Context, id uuid.UUID) error {
	sm, ok := m.state.meters[id]
	if !ok {
		return storage.ErrNotFound
	}
	if sm.Status != models.StatusAvailable {
		return storage.ErrConflict
	}
	sm.Status = models.StatusAssigned
	sm.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ReleaseSmartMeter(ctx context.Context, id uuid.UUID) error {
	sm, ok := m.state.meters[id]
	if !ok {
		return storage.ErrNotFound
	}
	if sm.Status != models.StatusAssigned {
		return storage.ErrConflict
	}
	sm.Status = models.StatusAvailable
	sm.UpdatedAt = time.Now()
	return nil
}

// ========== Edge gateways ==========

func (m *MemoryStore) CreateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error {
	if gateway.ID == uuid.Nil {
		gateway.ID = uuid.New()
	}
	if gateway.Status == "" {
		gateway.Status = models.StatusAvailable
	}
	for _, gw := range m.state.gateways {
		if gw.SerialNumber == gateway.SerialNumber {
			return storage.ErrDuplicateKey
		}
	}
	now := time.Now()
	gateway.CreatedAt = now
	gateway.UpdatedAt = now
	gw := *gateway
	m.state.gateways[gateway.ID] = &gw
	return nil
}

func (m *MemoryStore) GetEdgeGateway(ctx context.Context, id uuid.UUID) (*models.EdgeGateway, error) {
	gw, ok := m.state.gateways[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *gw
	return &out, nil
}

func (m *MemoryStore) UpdateEdgeGateway(ctx context.Context, gateway *models.EdgeGateway) error {
	if _, ok := m.state.gateways[gateway.ID]; !ok {
		return storage.ErrNotFound
	}
	gateway.UpdatedAt = time.Now()
	gw := *gateway
	m.state.gateways[gateway.ID] = &gw
	return nil
}

func (m *MemoryStore) DeleteEdgeGateway(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.gateways[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.gateways, id)
	return nil
}

func (m *MemoryStore) ListEdgeGateways(ctx context.Context, status *models.DeviceStatus, limit, offset int) ([]*models.EdgeGateway, int64, error) {
	var gateways []*models.EdgeGateway
	for _, gw := range m.state.gateways {
		if status != nil && gw.Status != *status {
			continue
		}
		out := *gw
		gateways = append(gateways, &out)
	}
	sort.Slice(gateways, func(i, j int) bool { return gateways[i].CreatedAt.After(gateways[j].CreatedAt) })
	total := int64(len(gateways))
	return paginate(gateways, limit, offset), total, nil
}

func (m *MemoryStore) ClaimEdgeGateway(ctx context.Context, id uuid.UUID) error {
	gw, ok := m.state.gateways[id]
	if !ok {
		return storage.ErrNotFound
	}
	if gw.Status != models.StatusAvailable {
		return storage.ErrConflict
	}
	gw.Status = models.StatusAssigned
	gw.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ReleaseEdgeGateway(ctx context.Context, id uuid.UUID) error {
	gw, ok := m.state.gateways[id]
	if !ok {
		return storage.ErrNotFound
	}
	if gw.Status != models.StatusAssigned {
		return storage.ErrConflict
	}
	gw.Status = models.StatusAvailable
	gw.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetGatewayNetworkConfig(ctx context.Context, gatewayID uuid.UUID) (*models.GatewayNetworkConfig, error) {
	cfg, ok := m.state.gatewayConfigs[gatewayID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *cfg
	return &out, nil
}

func (m *MemoryStore) SaveGatewayNetworkConfig(ctx context.Context, cfg *models.GatewayNetworkConfig) error {
	cfg.UpdatedAt = time.Now()
	c := *cfg
	m.state.gatewayConfigs[cfg.GatewayID] = &c
	return nil
}

// ========== Assignments ==========

func (m *MemoryStore) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	if assignment.EdgeGatewayID != nil {
		for _, a := range m.state.assignments {
			if a.EdgeGatewayID != nil && *a.EdgeGatewayID == *assignment.EdgeGatewayID {
				return storage.ErrDuplicateKey
			}
		}
	}
	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	a := *assignment
	a.SmartMeterIDs = nil
	m.state.assignments[assignment.ID] = &a
	return nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	a, ok := m.state.assignments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	out.SmartMeterIDs, _ = m.ListAssignmentMeters(ctx, id)
	return &out, nil
}

func (m *MemoryStore) GetAssignmentByGateway(ctx context.Context, gatewayID uuid.UUID) (*models.Assignment, error) {
	for _, a := range m.state.assignments {
		if a.EdgeGatewayID != nil && *a.EdgeGatewayID == gatewayID {
			out := *a
			out.SmartMeterIDs, _ = m.ListAssignmentMeters(ctx, a.ID)
			return &out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MemoryStore) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	existing, ok := m.state.assignments[assignment.ID]
	if !ok {
		return storage.ErrNotFound
	}
	assignment.UpdatedAt = time.Now()
	a := *assignment
	a.SmartMeterIDs = nil
	a.CreatedAt = existing.CreatedAt
	m.state.assignments[assignment.ID] = &a
	return nil
}

func (m *MemoryStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.assignments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.state.assignments, id)
	var kept []*models.AssignmentMeter
	for _, l := range m.state.assignmentMeters {
		if l.AssignmentID != id {
			kept = append(kept, l)
		}
	}
	m.state.assignmentMeters = kept
	return nil
}

func (m *MemoryStore) ListAssignments(ctx context.Context, companyID *uuid.UUID, limit, offset int) ([]*models.Assignment, int64, error) {
	var assignments []*models.Assignment
	for _, a := range m.state.assignments {
		if companyID != nil && a.CompanyID != *companyID {
			continue
		}
		out := *a
		out.SmartMeterIDs, _ = m.ListAssignmentMeters(ctx, a.ID)
		assignments = append(assignments, &out)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].CreatedAt.After(assignments[j].CreatedAt) })
	total := int64(len(assignments))
	return paginate(assignments, limit, offset), total, nil
}

func (m *MemoryStore) CountAssignmentsByCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	for _, a := range m.state.assignments {
		if a.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

// ========== Assignment meter links ==========

func (m *MemoryStore) AddAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error {
	for _, l := range m.state.assignmentMeters {
		if l.SmartMeterID == meterID {
			return storage.ErrDuplicateKey
		}
	}
	m.state.assignmentMeters = append(m.state.assignmentMeters, &models.AssignmentMeter{
		AssignmentID: assignmentID,
		SmartMeterID: meterID,
		LinkedAt:     time.Now(),
	})
	return nil
}

func (m *MemoryStore) RemoveAssignmentMeter(ctx context.Context, assignmentID, meterID uuid.UUID) error {
	for i, l := range m.state.assignmentMeters {
		if l.AssignmentID == assignmentID && l.SmartMeterID == meterID {
			m.state.assignmentMeters = append(m.state.assignmentMeters[:i], m.state.assignmentMeters[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *MemoryStore) ListAssignmentMeters(ctx context.Context, assignmentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, l := range m.state.assignmentMeters {
		if l.AssignmentID == assignmentID {
			ids = append(ids, l.SmartMeterID)
		}
	}
	return ids, nil
}

// ========== Audit events ==========

func (m *MemoryStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Level == "" {
		event.Level = models.EventLevelInfo
	}
	// Detach the stored row from the caller's pointers so later mutations
	// of the passed-in event cannot rewrite history.
	e := *event
	e.CompanyID = copyID(event.CompanyID)
	e.AssignmentID = copyID(event.AssignmentID)
	e.DeviceID = copyID(event.DeviceID)
	e.ActorID = copyID(event.ActorID)
	m.state.events = append(m.state.events, &e)
	return nil
}

func (m *MemoryStore) ListAuditEvents(ctx context.Context, filters storage.AuditEventFilters, limit, offset int) ([]*models.AuditEvent, int64, error) {
	var events []*models.AuditEvent
	for _, e := range m.state.events {
		if filters.CompanyID != nil && (e.CompanyID == nil || *e.CompanyID != *filters.CompanyID) {
			continue
		}
		if filters.AssignmentID != nil && (e.AssignmentID == nil || *e.AssignmentID != *filters.AssignmentID) {
			continue
		}
		if filters.DeviceID != nil && (e.DeviceID == nil || *e.DeviceID != *filters.DeviceID) {
			continue
		}
		if filters.Type != nil && e.Type != *filters.Type {
			continue
		}
		if filters.Level != nil && e.Level != *filters.Level {
			continue
		}
		if filters.StartTime != nil && e.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && e.CreatedAt.After(*filters.EndTime) {
			continue
		}
		out := *e
		events = append(events, &out)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	total := int64(len(events))
	return paginate(events, limit, offset), total, nil
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
