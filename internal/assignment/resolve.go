package assignment

import "github.com/voltgrid/energy-server/internal/models"

// ResolvePrimaryCompany picks the company relationship that scopes a user's
// device operations: the first relationship flagged primary, else the first
// by insertion order, nil when the user belongs to no company. The tie-break
// is deliberate and tested; picking the wrong relationship here would show a
// user another tenant's devices.
func ResolvePrimaryCompany(rels []*models.UserCompany) *models.UserCompany {
	if len(rels) == 0 {
		return nil
	}

	for _, rel := range rels {
		if rel.IsPrimary {
			return rel
		}
	}

	return rels[0]
}
