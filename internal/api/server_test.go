package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/energy-server/internal/aggregation"
	"github.com/voltgrid/energy-server/internal/assignment"
	"github.com/voltgrid/energy-server/internal/cache"
	"github.com/voltgrid/energy-server/internal/config"
	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage/storetest"
)

type testEnv struct {
	server *RESTServer
	store  *storetest.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "energy-server", Version: "test"},
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
		},
	}

	store := storetest.NewMemoryStore()
	service := assignment.NewService(store, nil)
	aggregator := aggregation.NewAggregator(store, cache.New(time.Minute))
	server := NewRESTServer(cfg, store, service, aggregator)

	return &testEnv{server: server, store: store}
}

// tokenFor mints an access token for a user with the given role.
func (e *testEnv) tokenFor(t *testing.T, role models.Role) string {
	t.Helper()

	user := &models.User{
		Email:    fmt.Sprintf("%s@nordgrid.example", role),
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))

	access, _, err := e.server.auth.GenerateTokenPair(user)
	require.NoError(t, err)
	return access
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.server.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/v1/smart-meters", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGarbageTokenIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/v1/smart-meters", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotWriteDevices(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleViewer)

	rec := e.request(t, http.MethodPost, "/api/v1/smart-meters", token, map[string]string{
		"serialNumber": "SM-1000",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestViewerCannotListUsers(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleViewer)

	rec := e.request(t, http.MethodGet, "/api/v1/users", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSmartMeter(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleAdmin)

	rec := e.request(t, http.MethodPost, "/api/v1/smart-meters", token, map[string]string{
		"serialNumber": "SM-1000",
		"manufacturer": "Iskra",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var meter models.SmartMeter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meter))
	assert.Equal(t, models.StatusAvailable, meter.Status)

	// Same serial again is refused.
	rec = e.request(t, http.MethodPost, "/api/v1/smart-meters", token, map[string]string{
		"serialNumber": "SM-1000",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSmartMeterRejectsBadBody(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleAdmin)

	rec := e.request(t, http.MethodPost, "/api/v1/smart-meters", token, map[string]string{
		"manufacturer": "Iskra", // serial missing
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownSmartMeter(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleViewer)

	rec := e.request(t, http.MethodGet, "/api/v1/smart-meters/6b1f0f3e-5a43-4b62-9e8c-16cf2f1e0a11", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.request(t, http.MethodGet, "/api/v1/smart-meters/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpointGuardsAssigned(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	token := e.tokenFor(t, models.RoleAdmin)

	company := &models.Company{Name: "Nordgrid Energy", IsActive: true}
	require.NoError(t, e.store.CreateCompany(ctx, company))

	meter := &models.SmartMeter{SerialNumber: "SM-1000", Status: models.StatusAvailable}
	require.NoError(t, e.store.CreateSmartMeter(ctx, meter))

	// Cannot push a device into assigned by hand.
	rec := e.request(t, http.MethodPut, "/api/v1/smart-meters/"+meter.ID.String()+"/status", token, map[string]string{
		"status": "assigned",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Maintenance is an allowed administrative transition.
	rec = e.request(t, http.MethodPut, "/api/v1/smart-meters/"+meter.ID.String()+"/status", token, map[string]string{
		"status": "maintenance",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Once the service assigns the meter, the endpoint refuses to touch it.
	require.NoError(t, e.store.UpdateSmartMeter(ctx, &models.SmartMeter{
		ID: meter.ID, SerialNumber: meter.SerialNumber, Status: models.StatusAssigned,
	}))
	rec = e.request(t, http.MethodPut, "/api/v1/smart-meters/"+meter.ID.String()+"/status", token, map[string]string{
		"status": "available",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	token := e.tokenFor(t, models.RoleAdmin)

	company := &models.Company{Name: "Nordgrid Energy", IsActive: true}
	require.NoError(t, e.store.CreateCompany(ctx, company))

	gateway := &models.EdgeGateway{SerialNumber: "GW-1000", Name: "plant-a", Status: models.StatusAvailable}
	require.NoError(t, e.store.CreateEdgeGateway(ctx, gateway))

	meter := &models.SmartMeter{SerialNumber: "SM-1000", Status: models.StatusAvailable}
	require.NoError(t, e.store.CreateSmartMeter(ctx, meter))

	// Create the assignment claiming the gateway.
	rec := e.request(t, http.MethodPost, "/api/v1/assignments", token, map[string]interface{}{
		"companyId":     company.ID.String(),
		"edgeGatewayId": gateway.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Link the meter through the gateway batch endpoint.
	rec = e.request(t, http.MethodPost, "/api/v1/assignments/assign-smart-meters", token, map[string]interface{}{
		"edgeGatewayId": gateway.ID.String(),
		"smartMeterIds": []string{meter.ID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Claiming the same gateway again conflicts.
	rec = e.request(t, http.MethodPost, "/api/v1/assignments", token, map[string]interface{}{
		"companyId":     company.ID.String(),
		"edgeGatewayId": gateway.ID.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Company cannot be deleted while the assignment exists.
	rec = e.request(t, http.MethodDelete, "/api/v1/companies/"+company.ID.String(), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Delete the assignment; devices go back to available.
	rec = e.request(t, http.MethodDelete, "/api/v1/assignments/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	gotMeter, err := e.store.GetSmartMeter(ctx, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotMeter.Status)

	gotGateway, err := e.store.GetEdgeGateway(ctx, gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, gotGateway.Status)

	// Double delete is a 404.
	rec = e.request(t, http.MethodDelete, "/api/v1/assignments/"+created.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignEdgeGatewayRequiresCompany(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	token := e.tokenFor(t, models.RoleAdmin)

	user := &models.User{Email: "orphan@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, e.store.CreateUser(ctx, user))

	gateway := &models.EdgeGateway{SerialNumber: "GW-1000", Name: "plant-a", Status: models.StatusAvailable}
	require.NoError(t, e.store.CreateEdgeGateway(ctx, gateway))

	rec := e.request(t, http.MethodPost, "/api/v1/assignments/assign-edge-gateway", token, map[string]string{
		"userId":        user.ID.String(),
		"edgeGatewayId": gateway.ID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorCannotDeleteAssignment(t *testing.T) {
	e := newTestEnv(t)
	token := e.tokenFor(t, models.RoleOperator)

	rec := e.request(t, http.MethodDelete, "/api/v1/assignments/6b1f0f3e-5a43-4b62-9e8c-16cf2f1e0a11", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGatewayNetworkConfigRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	token := e.tokenFor(t, models.RoleAdmin)

	gateway := &models.EdgeGateway{SerialNumber: "GW-1000", Name: "plant-a", Status: models.StatusAvailable}
	require.NoError(t, e.store.CreateEdgeGateway(ctx, gateway))

	path := "/api/v1/edge-gateways/" + gateway.ID.String() + "/network-config"

	rec := e.request(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.request(t, http.MethodPut, path, token, map[string]interface{}{
		"ipAddress":  "10.20.0.5",
		"memoryMb":   2048,
		"connSecret": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.request(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "10.20.0.5", cfg["ipAddress"])
	// Connection secrets are write-only.
	_, leaked := cfg["connSecret"]
	assert.False(t, leaked)
}
