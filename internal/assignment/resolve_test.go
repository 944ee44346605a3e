package assignment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/voltgrid/energy-server/internal/models"
)

func TestResolvePrimaryCompany(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	third := uuid.New()

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, ResolvePrimaryCompany(nil))
		assert.Nil(t, ResolvePrimaryCompany([]*models.UserCompany{}))
	})

	t.Run("prefers flagged primary", func(t *testing.T) {
		rels := []*models.UserCompany{
			{CompanyID: first},
			{CompanyID: second, IsPrimary: true},
			{CompanyID: third},
		}
		got := ResolvePrimaryCompany(rels)
		assert.Equal(t, second, got.CompanyID)
	})

	t.Run("falls back to first by insertion order", func(t *testing.T) {
		rels := []*models.UserCompany{
			{CompanyID: first},
			{CompanyID: second},
		}
		got := ResolvePrimaryCompany(rels)
		assert.Equal(t, first, got.CompanyID)
	})

	t.Run("first primary wins when several are flagged", func(t *testing.T) {
		rels := []*models.UserCompany{
			{CompanyID: first},
			{CompanyID: second, IsPrimary: true},
			{CompanyID: third, IsPrimary: true},
		}
		got := ResolvePrimaryCompany(rels)
		assert.Equal(t, second, got.CompanyID)
	})
}
