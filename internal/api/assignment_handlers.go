package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voltgrid/energy-server/internal/assignment"
	"github.com/voltgrid/energy-server/internal/models"
)

// ========== Assignment handlers ==========

// HandleListAssignments lists assignments, optionally scoped to a company
func (s *RESTServer) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	var companyID *uuid.UUID
	if v := r.URL.Query().Get("company_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid company_id")
			return
		}
		companyID = &id
	}

	assignments, total, err := s.store.ListAssignments(r.Context(), companyID, limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	if assignments == nil {
		assignments = []*models.Assignment{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": assignments,
		"total":       total,
	})
}

// HandleCreateAssignment creates an assignment, claiming the referenced
// devices atomically
func (s *RESTServer) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID         string  `json:"companyId" validate:"required,uuid"`
		FacilityID        *string `json:"facilityId"`
		DepartmentID      *string `json:"departmentId"`
		SmartMeterID      *string `json:"smartMeterId"`
		EdgeGatewayID     *string `json:"edgeGatewayId"`
		LocationDetails   string  `json:"locationDetails" validate:"max=500"`
		InstallationNotes string  `json:"installationNotes" validate:"max=2000"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	params := assignment.CreateParams{
		CompanyID:         companyID,
		LocationDetails:   req.LocationDetails,
		InstallationNotes: req.InstallationNotes,
		ActorID:           actorID(r),
	}

	if params.FacilityID, err = parseOptionalID(req.FacilityID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}
	if params.DepartmentID, err = parseOptionalID(req.DepartmentID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid department id")
		return
	}
	if params.SmartMeterID, err = parseOptionalID(req.SmartMeterID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}
	if params.EdgeGatewayID, err = parseOptionalID(req.EdgeGatewayID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	a, err := s.assignments.Create(r.Context(), params)
	if err != nil {
		s.storeError(w, err, "referenced resource not found")
		return
	}

	s.aggregator.InvalidateAll()
	s.respondJSON(w, http.StatusCreated, a)
}

// HandleGetAssignment gets an assignment
func (s *RESTServer) HandleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	a, err := s.store.GetAssignment(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "assignment not found")
		return
	}

	s.respondJSON(w, http.StatusOK, a)
}

// HandleUpdateAssignment updates descriptive assignment fields
func (s *RESTServer) HandleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	var req struct {
		FacilityID        *string `json:"facilityId"`
		DepartmentID      *string `json:"departmentId"`
		LocationDetails   *string `json:"locationDetails"`
		InstallationNotes *string `json:"installationNotes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := assignment.UpdateParams{
		LocationDetails:   req.LocationDetails,
		InstallationNotes: req.InstallationNotes,
	}
	if params.FacilityID, err = parseOptionalID(req.FacilityID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid facility id")
		return
	}
	if params.DepartmentID, err = parseOptionalID(req.DepartmentID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	a, err := s.assignments.Update(r.Context(), id, params, actorID(r))
	if err != nil {
		s.storeError(w, err, "assignment not found")
		return
	}

	s.aggregator.InvalidateAll()
	s.respondJSON(w, http.StatusOK, a)
}

// HandleDeleteAssignment deletes an assignment, releasing its devices
func (s *RESTServer) HandleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	if err := s.assignments.Delete(r.Context(), id, actorID(r)); err != nil {
		s.storeError(w, err, "assignment not found")
		return
	}

	s.aggregator.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignEdgeGateway claims a gateway for a user's primary company
func (s *RESTServer) HandleAssignEdgeGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string `json:"userId" validate:"required,uuid"`
		EdgeGatewayID string `json:"edgeGatewayId" validate:"required,uuid"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	gatewayID, err := uuid.Parse(req.EdgeGatewayID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	a, err := s.assignments.AssignEdgeGateway(r.Context(), userID, gatewayID, actorID(r))
	if err != nil {
		if errors.Is(err, assignment.ErrNoCompany) {
			s.respondError(w, http.StatusBadRequest, "user has no company relationship")
			return
		}
		s.storeError(w, err, "edge gateway not found")
		return
	}

	s.aggregator.InvalidateAll()
	s.respondJSON(w, http.StatusCreated, a)
}

// HandleAssignSmartMeters links a batch of meters to the assignment owning
// a gateway. The batch is all-or-nothing.
func (s *RESTServer) HandleAssignSmartMeters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EdgeGatewayID string   `json:"edgeGatewayId" validate:"required,uuid"`
		SmartMeterIDs []string `json:"smartMeterIds" validate:"required,min=1,max=100"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	gatewayID, err := uuid.Parse(req.EdgeGatewayID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	meterIDs := make([]uuid.UUID, 0, len(req.SmartMeterIDs))
	for _, raw := range req.SmartMeterIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
			return
		}
		meterIDs = append(meterIDs, id)
	}

	a, err := s.assignments.AssignSmartMeters(r.Context(), gatewayID, meterIDs, actorID(r))
	if err != nil {
		s.storeError(w, err, "assignment not found for gateway")
		return
	}

	s.aggregator.InvalidateAll()
	s.respondJSON(w, http.StatusOK, a)
}

// HandleRemoveEdgeGateway tears down the assignment claiming a gateway for
// the user's primary company
func (s *RESTServer) HandleRemoveEdgeGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string `json:"userId" validate:"required,uuid"`
		EdgeGatewayID string `json:"edgeGatewayId" validate:"required,uuid"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	gatewayID, err := uuid.Parse(req.EdgeGatewayID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	if err := s.assignments.RemoveEdgeGateway(r.Context(), userID, gatewayID, actorID(r)); err != nil {
		if errors.Is(err, assignment.ErrNoCompany) {
			s.respondError(w, http.StatusBadRequest, "user has no company relationship")
			return
		}
		s.storeError(w, err, "assignment not found for gateway")
		return
	}

	s.aggregator.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveAssignmentMeter unlinks one meter from an assignment
func (s *RESTServer) HandleRemoveAssignmentMeter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}
	meterID, err := uuid.Parse(chi.URLParam(r, "meterID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}

	if err := s.assignments.RemoveDirectSmartMeter(r.Context(), id, meterID, actorID(r)); err != nil {
		s.storeError(w, err, "assignment or meter link not found")
		return
	}

	s.aggregator.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// parseOptionalID parses an optional uuid string field.
func parseOptionalID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
