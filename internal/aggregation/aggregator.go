// Package aggregation answers the read-side question "what devices does
// this user's company have" with one authoritative server-side query,
// replacing per-page client joins.
package aggregation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/assignment"
	"github.com/voltgrid/energy-server/internal/cache"
	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
)

// listLimit caps the assignments returned for one user.
const listLimit = 500

// Aggregator resolves user-scoped assignment views.
type Aggregator struct {
	store storage.Store
	cache *cache.Cache
}

// NewAggregator creates an aggregator. cache may be nil to disable caching.
func NewAggregator(store storage.Store, c *cache.Cache) *Aggregator {
	return &Aggregator{store: store, cache: c}
}

// AssignmentsForUser returns every assignment belonging to the user's
// primary company, or an empty slice when the user has no resolvable
// company. Assignments of any other company are never included.
func (a *Aggregator) AssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Assignment, error) {
	key := cacheKey(userID)
	if a.cache != nil {
		if v, ok := a.cache.Get(key); ok {
			return v.([]*models.Assignment), nil
		}
	}

	rels, err := a.store.ListUserCompanies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user companies: %w", err)
	}

	primary := assignment.ResolvePrimaryCompany(rels)
	if primary == nil {
		return []*models.Assignment{}, nil
	}

	assignments, _, err := a.store.ListAssignments(ctx, &primary.CompanyID, listLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if assignments == nil {
		assignments = []*models.Assignment{}
	}

	if a.cache != nil {
		a.cache.Set(key, assignments)
	}

	return assignments, nil
}

// InvalidateUser drops the cached view for one user.
func (a *Aggregator) InvalidateUser(userID uuid.UUID) {
	if a.cache != nil {
		a.cache.Invalidate(cacheKey(userID))
	}
}

// InvalidateAll drops every cached view. Called after assignment mutations,
// which can affect any user of the touched company.
func (a *Aggregator) InvalidateAll() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

func cacheKey(userID uuid.UUID) string {
	return "user-assignments:" + userID.String()
}
