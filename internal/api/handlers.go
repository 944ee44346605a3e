package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voltgrid/energy-server/internal/models"
	"github.com/voltgrid/energy-server/internal/storage"
	"github.com/voltgrid/energy-server/pkg/crypto"
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	// Best effort: a failed bookkeeping write must not fail the login.
	now := time.Now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		log.Error().Err(err).Str("user", user.Email).Msg("Failed to update last login")
	}
	if err := s.store.CreateAuditEvent(r.Context(), &models.AuditEvent{
		ActorID:     &user.ID,
		Type:        models.EventTypeUserLogin,
		Level:       models.EventLevelInfo,
		Description: "user logged in",
	}); err != nil {
		log.Error().Err(err).Str("user", user.Email).Msg("Failed to record login event")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleGetCurrentUser gets the authenticated user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "missing token")
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.storeError(w, err, "user not found")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// ========== User handlers ==========

// HandleListUsers lists users
func (s *RESTServer) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	users, total, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": total,
	})
}

// HandleCreateUser creates a user
func (s *RESTServer) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=8"`
		FirstName string `json:"firstName" validate:"max=100"`
		LastName  string `json:"lastName" validate:"max=100"`
		Role      string `json:"role" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role := models.Role(req.Role)
	if !role.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &models.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "user already exists")
			return
		}
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, user)
}

// HandleGetUser gets a user
func (s *RESTServer) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "user not found")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleUpdateUser updates a user
func (s *RESTServer) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		Role      *string `json:"role"`
		IsActive  *bool   `json:"isActive"`
		Password  *string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "user not found")
		return
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		if !role.Valid() {
			s.respondError(w, http.StatusBadRequest, "unknown role")
			return
		}
		user.Role = role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			s.respondError(w, http.StatusBadRequest, "password too short")
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
		user.PasswordHash = hash
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.storeError(w, err, "user not found")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleDeleteUser deletes a user
func (s *RESTServer) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.storeError(w, err, "user not found")
		return
	}

	s.aggregator.InvalidateUser(id)
	w.WriteHeader(http.StatusNoContent)
}

// ========== User-company handlers ==========

// HandleListUserCompanies lists a user's company relationships
func (s *RESTServer) HandleListUserCompanies(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	rels, err := s.store.ListUserCompanies(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "")
		return
	}
	if rels == nil {
		rels = []*models.UserCompany{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"companies": rels,
		"total":     len(rels),
	})
}

// HandleAddUserCompany links a user to a company
func (s *RESTServer) HandleAddUserCompany(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		CompanyID    string  `json:"companyId" validate:"required,uuid"`
		IsPrimary    bool    `json:"isPrimary"`
		FacilityID   *string `json:"facilityId" validate:"uuid"`
		DepartmentID *string `json:"departmentId" validate:"uuid"`
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

	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		s.storeError(w, err, "user not found")
		return
	}
	if _, err := s.store.GetCompany(r.Context(), companyID); err != nil {
		s.storeError(w, err, "company not found")
		return
	}

	rel := &models.UserCompany{
		UserID:    userID,
		CompanyID: companyID,
		IsPrimary: req.IsPrimary,
	}
	if req.FacilityID != nil {
		facilityID, err := uuid.Parse(*req.FacilityID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid facility id")
			return
		}
		rel.FacilityID = &facilityID
	}
	if req.DepartmentID != nil {
		departmentID, err := uuid.Parse(*req.DepartmentID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid department id")
			return
		}
		rel.DepartmentID = &departmentID
	}

	if err := s.store.AddUserCompany(r.Context(), rel); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "relationship already exists")
			return
		}
		s.storeError(w, err, "")
		return
	}

	s.aggregator.InvalidateUser(userID)
	s.respondJSON(w, http.StatusCreated, rel)
}

// HandleRemoveUserCompany unlinks a user from a company
func (s *RESTServer) HandleRemoveUserCompany(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	if err := s.store.RemoveUserCompany(r.Context(), userID, companyID); err != nil {
		s.storeError(w, err, "relationship not found")
		return
	}

	s.aggregator.InvalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUserAssignments returns the assignments of the user's primary
// company, resolved and filtered server-side.
func (s *RESTServer) HandleUserAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	assignments, err := s.aggregator.AssignmentsForUser(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": assignments,
		"total":       len(assignments),
	})
}

// ========== Event handlers ==========

// HandleListEvents lists audit events
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	var filters storage.AuditEventFilters
	q := r.URL.Query()
	if v := q.Get("company_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid company_id")
			return
		}
		filters.CompanyID = &id
	}
	if v := q.Get("assignment_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid assignment_id")
			return
		}
		filters.AssignmentID = &id
	}
	if v := q.Get("device_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		filters.DeviceID = &id
	}
	if v := q.Get("type"); v != "" {
		t := models.EventType(v)
		filters.Type = &t
	}
	if v := q.Get("level"); v != "" {
		l := models.EventLevel(v)
		filters.Level = &l
	}

	events, total, err := s.store.ListAuditEvents(r.Context(), filters, limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// ========== System handlers ==========

// HandleHealth handles health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// HandleRoot handles the root endpoint
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":    s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// ========== Helpers ==========

// paging parses limit/offset query params with a default page size.
func paging(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// actorID returns the authenticated user id for audit attribution.
func actorID(r *http.Request) *uuid.UUID {
	claims := claimsFrom(r.Context())
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}

// storeError maps storage errors to HTTP status codes. Anything that is not
// a known sentinel becomes a 500 with a generic message; the raw error is
// logged but never returned to the client.
func (s *RESTServer) storeError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if notFoundMsg == "" {
			notFoundMsg = "not found"
		}
		s.respondError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, storage.ErrConflict):
		s.respondError(w, http.StatusConflict, "conflicting device or resource state")
	case errors.Is(err, storage.ErrDuplicateKey):
		s.respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, storage.ErrInvalidData):
		s.respondError(w, http.StatusBadRequest, "invalid data")
	default:
		log.Error().Err(err).Msg("Request failed")
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
