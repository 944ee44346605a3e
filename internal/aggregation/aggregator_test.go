package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/energy-server/internal/cache"
	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage/storetest"
)

func seedCompanyWithAssignment(t *testing.T, store *storetest.MemoryStore, name string) (*models.Company, *models.Assignment) {
	t.Helper()
	ctx := context.Background()

	company := &models.Company{Name: name, IsActive: true}
	require.NoError(t, store.CreateCompany(ctx, company))

	a := &models.Assignment{CompanyID: company.ID}
	require.NoError(t, store.CreateAssignment(ctx, a))

	return company, a
}

func seedUser(t *testing.T, store *storetest.MemoryStore, email string, companyID uuid.UUID) *models.User {
	t.Helper()
	ctx := context.Background()

	user := &models.User{Email: email, Role: models.RoleViewer, IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))
	if companyID != uuid.Nil {
		require.NoError(t, store.AddUserCompany(ctx, &models.UserCompany{
			UserID:    user.ID,
			CompanyID: companyID,
			IsPrimary: true,
		}))
	}
	return user
}

func TestAssignmentsForUserScopedToPrimaryCompany(t *testing.T) {
	store := storetest.NewMemoryStore()
	companyA, assignmentA := seedCompanyWithAssignment(t, store, "Nordgrid Energy")
	_, assignmentB := seedCompanyWithAssignment(t, store, "Baltic Power")

	user := seedUser(t, store, "viewer@nordgrid.example", companyA.ID)

	agg := NewAggregator(store, nil)
	got, err := agg.AssignmentsForUser(context.Background(), user.ID)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, assignmentA.ID, got[0].ID)
	assert.NotEqual(t, assignmentB.ID, got[0].ID)
}

func TestAssignmentsForUserWithoutCompany(t *testing.T) {
	store := storetest.NewMemoryStore()
	seedCompanyWithAssignment(t, store, "Nordgrid Energy")

	user := seedUser(t, store, "orphan@nordgrid.example", uuid.Nil)

	agg := NewAggregator(store, nil)
	got, err := agg.AssignmentsForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestAssignmentsForUserCached(t *testing.T) {
	store := storetest.NewMemoryStore()
	company, _ := seedCompanyWithAssignment(t, store, "Nordgrid Energy")
	user := seedUser(t, store, "viewer@nordgrid.example", company.ID)

	agg := NewAggregator(store, cache.New(time.Minute))

	first, err := agg.AssignmentsForUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A second assignment appears but the cached view is still served.
	require.NoError(t, store.CreateAssignment(context.Background(), &models.Assignment{CompanyID: company.ID}))

	cached, err := agg.AssignmentsForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	// Invalidation exposes the new state.
	agg.InvalidateUser(user.ID)

	fresh, err := agg.AssignmentsForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestInvalidateAllDropsEveryView(t *testing.T) {
	store := storetest.NewMemoryStore()
	company, _ := seedCompanyWithAssignment(t, store, "Nordgrid Energy")
	userA := seedUser(t, store, "a@nordgrid.example", company.ID)
	userB := seedUser(t, store, "b@nordgrid.example", company.ID)

	agg := NewAggregator(store, cache.New(time.Minute))

	for _, id := range []uuid.UUID{userA.ID, userB.ID} {
		_, err := agg.AssignmentsForUser(context.Background(), id)
		require.NoError(t, err)
	}

	require.NoError(t, store.CreateAssignment(context.Background(), &models.Assignment{CompanyID: company.ID}))
	agg.InvalidateAll()

	for _, id := range []uuid.UUID{userA.ID, userB.ID} {
		got, err := agg.AssignmentsForUser(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
}
