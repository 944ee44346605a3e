package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
)

// ========== Company handlers ==========

// HandleListCompanies lists companies
func (s *RESTServer) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	companies, total, err := s.store.ListCompanies(r.Context(), limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"companies": companies,
		"total":     total,
	})
}

// HandleCreateCompany creates a company
func (s *RESTServer) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name" validate:"required,min=2,max=200"`
		Description  string `json:"description" validate:"max=1000"`
		ContactEmail string `json:"contactEmail" validate:"email"`
		ContactPhone string `json:"contactPhone" validate:"max=50"`
		BillingEmail string `json:"billingEmail" validate:"email"`
		BillingPlan  string `json:"billingPlan" validate:"max=50"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	company := &models.Company{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		BillingEmail: req.BillingEmail,
		BillingPlan:  req.BillingPlan,
		IsActive:     true,
	}

	if err := s.store.CreateCompany(r.Context(), company); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "company already exists")
			return
		}
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, company)
}

// HandleGetCompany gets a company
func (s *RESTServer) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "company not found")
		return
	}

	s.respondJSON(w, http.StatusOK, company)
}

// HandleUpdateCompany updates a company
func (s *RESTServer) HandleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	var req struct {
		Name         *string `json:"name"`
		Description  *string `json:"description"`
		ContactEmail *string `json:"contactEmail"`
		ContactPhone *string `json:"contactPhone"`
		BillingEmail *string `json:"billingEmail"`
		BillingPlan  *string `json:"billingPlan"`
		IsActive     *bool   `json:"isActive"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "company not found")
		return
	}

	if req.Name != nil {
		company.Name = *req.Name
	}
	if req.Description != nil {
		company.Description = *req.Description
	}
	if req.ContactEmail != nil {
		company.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		company.ContactPhone = *req.ContactPhone
	}
	if req.BillingEmail != nil {
		company.BillingEmail = *req.BillingEmail
	}
	if req.BillingPlan != nil {
		company.BillingPlan = *req.BillingPlan
	}
	if req.IsActive != nil {
		company.IsActive = *req.IsActive
	}

	if err := s.store.UpdateCompany(r.Context(), company); err != nil {
		s.storeError(w, err, "company not found")
		return
	}

	s.respondJSON(w, http.StatusOK, company)
}

// HandleDeleteCompany deletes a company. A company that still owns
// assignments is refused with 409: the devices must be released first.
func (s *RESTServer) HandleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	if err := s.store.DeleteCompany(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			s.respondError(w, http.StatusConflict, "company still has active assignments")
			return
		}
		s.storeError(w, err, "company not found")
		return
	}

	if err := s.store.CreateAuditEvent(r.Context(), &models.AuditEvent{
		CompanyID:   &id,
		ActorID:     actorID(r),
		Type:        models.EventTypeCompanyDeleted,
		Level:       models.EventLevelWarning,
		Description: "company deleted",
	}); err != nil {
		log.Error().Err(err).Str("company", id.String()).Msg("Failed to record audit event")
	}

	s.aggregator.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// ========== Facility handlers ==========

// HandleListFacilities lists a company's facilities
func (s *RESTServer) HandleListFacilities(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	facilities, err := s.store.ListFacilities(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	if facilities == nil {
		facilities = []*models.Facility{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"facilities": facilities,
		"total":      len(facilities),
	})
}

// HandleCreateFacility creates a facility under a company
func (s *RESTServer) HandleCreateFacility(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	var req struct {
		Name    string `json:"name" validate:"required,min=2,max=200"`
		Address string `json:"address" validate:"max=500"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetCompany(r.Context(), companyID); err != nil {
		s.storeError(w, err, "company not found")
		return
	}

	facility := &models.Facility{
		CompanyID: companyID,
		Name:      req.Name,
		Address:   req.Address,
	}

	if err := s.store.CreateFacility(r.Context(), facility); err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, facility)
}

// HandleGetFacility gets a facility
func (s *RESTServer) HandleGetFacility(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}

	facility, err := s.store.GetFacility(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "facility not found")
		return
	}

	s.respondJSON(w, http.StatusOK, facility)
}

// HandleDeleteFacility deletes a facility
func (s *RESTServer) HandleDeleteFacility(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}

	if err := s.store.DeleteFacility(r.Context(), id); err != nil {
		s.storeError(w, err, "facility not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Department handlers ==========

// HandleListDepartments lists a facility's departments
func (s *RESTServer) HandleListDepartments(w http.ResponseWriter, r *http.Request) {
	facilityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}

	departments, err := s.store.ListDepartments(r.Context(), facilityID)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	if departments == nil {
		departments = []*models.Department{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"departments": departments,
		"total":       len(departments),
	})
}

// HandleCreateDepartment creates a department under a facility
func (s *RESTServer) HandleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	facilityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,min=2,max=200"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetFacility(r.Context(), facilityID); err != nil {
		s.storeError(w, err, "facility not found")
		return
	}

	department := &models.Department{
		FacilityID: facilityID,
		Name:       req.Name,
	}

	if err := s.store.CreateDepartment(r.Context(), department); err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, department)
}

// HandleGetDepartment gets a department
func (s *RESTServer) HandleGetDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	department, err := s.store.GetDepartment(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "department not found")
		return
	}

	s.respondJSON(w, http.StatusOK, department)
}

// HandleDeleteDepartment deletes a department
func (s *RESTServer) HandleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	if err := s.store.DeleteDepartment(r.Context(), id); err != nil {
		s.storeError(w, err, "department not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
