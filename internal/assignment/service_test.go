package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
	"github.com/voltgrid/energy-server/internal/storage/storetest"
)

type fixture struct {
	store   *storetest.MemoryStore
	service *Service
	company *models.Company
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storetest.NewMemoryStore()

	company := &models.Company{Name: "Nordgrid Energy", IsActive: true}
	require.NoError(t, store.CreateCompany(context.Background(), company))

	return &fixture{
		store:   store,
		service: NewService(store, nil),
		company: company,
	}
}

func (f *fixture) addMeter(t *testing.T, serial string, status models.DeviceStatus) *models.SmartMeter {
	t.Helper()
	meter := &models.SmartMeter{SerialNumber: serial, Status: status}
	require.NoError(t, f.store.CreateSmartMeter(context.Background(), meter))
	return meter
}

func (f *fixture) addGateway(t *testing.T, serial string, status models.DeviceStatus) *models.EdgeGateway {
	t.Helper()
	gateway := &models.EdgeGateway{SerialNumber: serial, Name: "gw-" + serial, Status: status}
	require.NoError(t, f.store.CreateEdgeGateway(context.Background(), gateway))
	return gateway
}

func (f *fixture) addUser(t *testing.T, email string, companyID uuid.UUID, primary bool) *models.User {
	t.Helper()
	user := &models.User{Email: email, Role: models.RoleOperator, IsActive: true}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	if companyID != uuid.Nil {
		require.NoError(t, f.store.AddUserCompany(context.Background(), &models.UserCompany{
			UserID:    user.ID,
			CompanyID: companyID,
			IsPrimary: primary,
		}))
	}
	return user
}

func TestCreateClaimsMeter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	a, err := f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.NoError(t, err)

	got, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)

	stored, err := f.store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{meter.ID}, stored.SmartMeterIDs)
}

func TestCreateRejectsUnavailableMeter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []models.DeviceStatus{
		models.StatusAssigned,
		models.StatusMaintenance,
		models.StatusDecommissioned,
	} {
		meter := f.addMeter(t, "SM-"+string(status), status)

		_, err := f.service.Create(ctx, CreateParams{
			CompanyID:    f.company.ID,
			SmartMeterID: &meter.ID,
		})
		assert.ErrorIs(t, err, storage.ErrConflict, "status %s", status)
	}
}

func TestCreateRejectsMissingCompany(t *testing.T) {
	f := newFixture(t)
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	_, err := f.service.Create(context.Background(), CreateParams{
		CompanyID:    uuid.New(),
		SmartMeterID: &meter.ID,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The failed create must not have touched the meter.
	got, err := f.store.GetSmartMeter(context.Background(), meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)
}

func TestDeleteReleasesDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	a, err := f.service.Create(ctx, CreateParams{
		CompanyID:     f.company.ID,
		SmartMeterID:  &meter.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, a.ID, nil))

	gotMeter, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotMeter.Status)

	gotGateway, err := f.store.GetEdgeGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotGateway.Status)

	_, err = f.store.GetAssignment(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteTwiceReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	a, err := f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, a.ID, nil))

	err = f.service.Delete(ctx, a.ID, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Second delete must not disturb the released meter.
	got, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)
}

func TestAssignEdgeGatewayUsesPrimaryCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &models.Company{Name: "Baltic Power", IsActive: true}
	require.NoError(t, f.store.CreateCompany(ctx, other))

	user := f.addUser(t, "op@nordgrid.example", other.ID, false)
	require.NoError(t, f.store.AddUserCompany(ctx, &models.UserCompany{
		UserID:    user.ID,
		CompanyID: f.company.ID,
		IsPrimary: true,
	}))

	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	a, err := f.service.AssignEdgeGateway(ctx, user.ID, gateway.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, f.company.ID, a.CompanyID)

	got, err := f.store.GetEdgeGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
}

func TestAssignEdgeGatewayWithoutCompany(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "orphan@nordgrid.example", uuid.Nil, false)
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.AssignEdgeGateway(context.Background(), user.ID, gateway.ID, nil)
	assert.ErrorIs(t, err, ErrNoCompany)

	got, err := f.store.GetEdgeGateway(context.Background(), gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)
}

func TestAssignSmartMetersAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:     f.company.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	m1 := f.addMeter(t, "SM-001", models.StatusAvailable)
	m2 := f.addMeter(t, "SM-002", models.StatusAssigned)

	_, err = f.service.AssignSmartMeters(ctx, gateway.ID, []uuid.UUID{m1.ID, m2.ID}, nil)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// The first meter's claim must have rolled back with the batch.
	got, err := f.store.GetSmartMeter(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)

	a, err := f.store.GetAssignmentByGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Empty(t, a.SmartMeterIDs)
}

func TestAssignSmartMetersBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:     f.company.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	m1 := f.addMeter(t, "SM-001", models.StatusAvailable)
	m2 := f.addMeter(t, "SM-002", models.StatusAvailable)

	a, err := f.service.AssignSmartMeters(ctx, gateway.ID, []uuid.UUID{m1.ID, m2.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, a.SmartMeterIDs, 2)

	for _, id := range []uuid.UUID{m1.ID, m2.ID} {
		got, err := f.store.GetSmartMeter(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAssigned, got.Status)
	}
}

func TestAssignSmartMetersAuditsEachMeter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:     f.company.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	m1 := f.addMeter(t, "SM-001", models.StatusAvailable)
	m2 := f.addMeter(t, "SM-002", models.StatusAvailable)

	_, err = f.service.AssignSmartMeters(ctx, gateway.ID, []uuid.UUID{m1.ID, m2.ID}, nil)
	require.NoError(t, err)

	linked := models.EventTypeMeterLinked
	evs, _, err := f.store.ListAuditEvents(ctx, storage.AuditEventFilters{Type: &linked}, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	// Each link event must carry its own meter's id, not the last of the
	// batch twice.
	seen := make(map[uuid.UUID]bool)
	for _, ev := range evs {
		require.NotNil(t, ev.DeviceID)
		seen[*ev.DeviceID] = true
	}
	assert.True(t, seen[m1.ID], "missing link event for first meter")
	assert.True(t, seen[m2.ID], "missing link event for second meter")
}

func TestRemoveEdgeGatewayCrossTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &models.Company{Name: "Baltic Power", IsActive: true}
	require.NoError(t, f.store.CreateCompany(ctx, other))

	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)
	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:     other.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	user := f.addUser(t, "op@nordgrid.example", f.company.ID, true)

	// The gateway belongs to another tenant; the caller learns nothing
	// beyond "not found".
	err = f.service.RemoveEdgeGateway(ctx, user.ID, gateway.ID, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := f.store.GetEdgeGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
}

func TestRemoveEdgeGatewayReleasesLinkedMeters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.addUser(t, "op@nordgrid.example", f.company.ID, true)
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.AssignEdgeGateway(ctx, user.ID, gateway.ID, nil)
	require.NoError(t, err)

	meter := f.addMeter(t, "SM-001", models.StatusAvailable)
	_, err = f.service.AssignSmartMeters(ctx, gateway.ID, []uuid.UUID{meter.ID}, nil)
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveEdgeGateway(ctx, user.ID, gateway.ID, nil))

	gotGateway, err := f.store.GetEdgeGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotGateway.Status)

	gotMeter, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotMeter.Status)

	_, err = f.store.GetAssignmentByGateway(ctx, gateway.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveSmartMeterUnlinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := f.addGateway(t, "GW-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:     f.company.ID,
		EdgeGatewayID: &gateway.ID,
	})
	require.NoError(t, err)

	meter := f.addMeter(t, "SM-001", models.StatusAvailable)
	_, err = f.service.AssignSmartMeters(ctx, gateway.ID, []uuid.UUID{meter.ID}, nil)
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveSmartMeter(ctx, gateway.ID, meter.ID, nil))

	got, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, got.Status)

	a, err := f.store.GetAssignmentByGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Empty(t, a.SmartMeterIDs)
}

func TestMeterNeverDoubleLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.NoError(t, err)

	_, err = f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrDuplicateKey))
}

func TestCompanyDeleteBlockedByAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	_, err := f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.NoError(t, err)

	err = f.store.DeleteCompany(ctx, f.company.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestUpdateChangesDescriptiveFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meter := f.addMeter(t, "SM-001", models.StatusAvailable)

	a, err := f.service.Create(ctx, CreateParams{
		CompanyID:    f.company.ID,
		SmartMeterID: &meter.ID,
	})
	require.NoError(t, err)

	location := "Hall B, rack 3"
	updated, err := f.service.Update(ctx, a.ID, UpdateParams{LocationDetails: &location}, nil)
	require.NoError(t, err)
	assert.Equal(t, location, updated.LocationDetails)
	assert.Equal(t, a.CompanyID, updated.CompanyID)

	got, err := f.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
}
