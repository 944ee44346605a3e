package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/energy-server/internal/config"
	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage/storetest"
)

func newManager(t *testing.T) (*JWTManager, *storetest.MemoryStore) {
	t.Helper()
	store := storetest.NewMemoryStore()
	cfg := &config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewJWTManager(cfg, store), store
}

func TestTokenRoundTrip(t *testing.T) {
	m, store := newManager(t)

	user := &models.User{Email: "op@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), user))

	access, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, models.RoleOperator, claims.Role)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	m, store := newManager(t)

	user := &models.User{Email: "op@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), user))

	access, _, err := m.GenerateTokenPair(user)
	require.NoError(t, err)

	_, err = m.ValidateToken(access + "x")
	assert.Error(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:         "different-secret",
		AccessTokenTTL: time.Minute,
	}, store)
	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestRefreshReloadsUser(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	user := &models.User{Email: "op@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	_, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)

	// Role changes between token issue and refresh take effect immediately.
	user.Role = models.RoleViewer
	require.NoError(t, store.UpdateUser(ctx, user))

	access, _, err := m.RefreshToken(ctx, refresh)
	require.NoError(t, err)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, claims.Role)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	user := &models.User{Email: "op@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	_, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, store.UpdateUser(ctx, user))

	_, _, err = m.RefreshToken(ctx, refresh)
	assert.Error(t, err)
}

func TestRefreshRejectsAccessTokenOfUnknownUser(t *testing.T) {
	m, store := newManager(t)

	user := &models.User{Email: "ghost@nordgrid.example", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), user))

	_, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(context.Background(), user.ID))

	_, _, err = m.RefreshToken(context.Background(), refresh)
	assert.Error(t, err)
}
