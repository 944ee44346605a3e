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

// statusFilter parses the optional ?status= query parameter.
func statusFilter(r *http.Request) (*models.DeviceStatus, bool) {
	v := r.URL.Query().Get("status")
	if v == "" {
		return nil, true
	}
	status := models.DeviceStatus(v)
	if !status.Valid() {
		return nil, false
	}
	return &status, true
}

// ========== Smart meter handlers ==========

// HandleListSmartMeters lists smart meters, optionally filtered by status
func (s *RESTServer) HandleListSmartMeters(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	status, ok := statusFilter(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	meters, total, err := s.store.ListSmartMeters(r.Context(), status, limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"smart_meters": meters,
		"total":        total,
	})
}

// HandleCreateSmartMeter registers a smart meter
func (s *RESTServer) HandleCreateSmartMeter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SerialNumber    string            `json:"serialNumber" validate:"required,min=4,max=100"`
		Manufacturer    string            `json:"manufacturer" validate:"max=200"`
		Model           string            `json:"model" validate:"max=200"`
		FirmwareVersion string            `json:"firmwareVersion" validate:"max=50"`
		Metadata        models.Variables  `json:"metadata"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	meter := &models.SmartMeter{
		SerialNumber:    req.SerialNumber,
		Manufacturer:    req.Manufacturer,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		Status:          models.StatusAvailable,
		Metadata:        req.Metadata,
	}

	if err := s.store.CreateSmartMeter(r.Context(), meter); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "serial number already registered")
			return
		}
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, meter)
}

// HandleGetSmartMeter gets a smart meter
func (s *RESTServer) HandleGetSmartMeter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}

	meter, err := s.store.GetSmartMeter(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	s.respondJSON(w, http.StatusOK, meter)
}

// HandleUpdateSmartMeter updates smart meter descriptive fields
func (s *RESTServer) HandleUpdateSmartMeter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}

	var req struct {
		Manufacturer    *string          `json:"manufacturer"`
		Model           *string          `json:"model"`
		FirmwareVersion *string          `json:"firmwareVersion"`
		Metadata        models.Variables `json:"metadata"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	meter, err := s.store.GetSmartMeter(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	if req.Manufacturer != nil {
		meter.Manufacturer = *req.Manufacturer
	}
	if req.Model != nil {
		meter.Model = *req.Model
	}
	if req.FirmwareVersion != nil {
		meter.FirmwareVersion = *req.FirmwareVersion
	}
	if req.Metadata != nil {
		meter.Metadata = req.Metadata
	}

	if err := s.store.UpdateSmartMeter(r.Context(), meter); err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	s.respondJSON(w, http.StatusOK, meter)
}

// HandleDeleteSmartMeter deletes a smart meter. An assigned meter cannot be
// deleted; it must be released from its assignment first.
func (s *RESTServer) HandleDeleteSmartMeter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}

	meter, err := s.store.GetSmartMeter(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}
	if meter.Status == models.StatusAssigned {
		s.respondError(w, http.StatusConflict, "smart meter is assigned")
		return
	}

	if err := s.store.DeleteSmartMeter(r.Context(), id); err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetSmartMeterStatus sets the administrative status of a meter
func (s *RESTServer) HandleSetSmartMeterStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid smart meter id")
		return
	}

	status, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}

	meter, err := s.store.GetSmartMeter(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	if !s.statusTransitionAllowed(w, meter.Status, status) {
		return
	}

	meter.Status = status
	if err := s.store.UpdateSmartMeter(r.Context(), meter); err != nil {
		s.storeError(w, err, "smart meter not found")
		return
	}

	s.auditStatusChange(r, &meter.ID, "smart meter status changed")
	s.respondJSON(w, http.StatusOK, meter)
}

// ========== Edge gateway handlers ==========

// HandleListEdgeGateways lists edge gateways, optionally filtered by status
func (s *RESTServer) HandleListEdgeGateways(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)

	status, ok := statusFilter(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	gateways, total, err := s.store.ListEdgeGateways(r.Context(), status, limit, offset)
	if err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"edge_gateways": gateways,
		"total":         total,
	})
}

// HandleCreateEdgeGateway registers an edge gateway
func (s *RESTServer) HandleCreateEdgeGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SerialNumber    string           `json:"serialNumber" validate:"required,min=4,max=100"`
		Name            string           `json:"name" validate:"required,min=2,max=200"`
		Model           string           `json:"model" validate:"max=200"`
		FirmwareVersion string           `json:"firmwareVersion" validate:"max=50"`
		Metadata        models.Variables `json:"metadata"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	gateway := &models.EdgeGateway{
		SerialNumber:    req.SerialNumber,
		Name:            req.Name,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		Status:          models.StatusAvailable,
		Metadata:        req.Metadata,
	}

	if err := s.store.CreateEdgeGateway(r.Context(), gateway); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "serial number already registered")
			return
		}
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, gateway)
}

// HandleGetEdgeGateway gets an edge gateway
func (s *RESTServer) HandleGetEdgeGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	gateway, err := s.store.GetEdgeGateway(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	s.respondJSON(w, http.StatusOK, gateway)
}

// HandleUpdateEdgeGateway updates edge gateway descriptive fields
func (s *RESTServer) HandleUpdateEdgeGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	var req struct {
		Name            *string          `json:"name"`
		Model           *string          `json:"model"`
		FirmwareVersion *string          `json:"firmwareVersion"`
		Metadata        models.Variables `json:"metadata"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	gateway, err := s.store.GetEdgeGateway(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	if req.Name != nil {
		gateway.Name = *req.Name
	}
	if req.Model != nil {
		gateway.Model = *req.Model
	}
	if req.FirmwareVersion != nil {
		gateway.FirmwareVersion = *req.FirmwareVersion
	}
	if req.Metadata != nil {
		gateway.Metadata = req.Metadata
	}

	if err := s.store.UpdateEdgeGateway(r.Context(), gateway); err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	s.respondJSON(w, http.StatusOK, gateway)
}

// HandleDeleteEdgeGateway deletes an edge gateway. An assigned gateway
// cannot be deleted; the owning assignment must be removed first.
func (s *RESTServer) HandleDeleteEdgeGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	gateway, err := s.store.GetEdgeGateway(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}
	if gateway.Status == models.StatusAssigned {
		s.respondError(w, http.StatusConflict, "edge gateway is assigned")
		return
	}

	if err := s.store.DeleteEdgeGateway(r.Context(), id); err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetEdgeGatewayStatus sets the administrative status of a gateway
func (s *RESTServer) HandleSetEdgeGatewayStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	status, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}

	gateway, err := s.store.GetEdgeGateway(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	if !s.statusTransitionAllowed(w, gateway.Status, status) {
		return
	}

	gateway.Status = status
	if err := s.store.UpdateEdgeGateway(r.Context(), gateway); err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	s.auditStatusChange(r, &gateway.ID, "edge gateway status changed")
	s.respondJSON(w, http.StatusOK, gateway)
}

// ========== Gateway network config handlers ==========

// HandleGetGatewayNetworkConfig gets a gateway's network sub-record
func (s *RESTServer) HandleGetGatewayNetworkConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	cfg, err := s.store.GetGatewayNetworkConfig(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "network config not found")
		return
	}

	s.respondJSON(w, http.StatusOK, cfg)
}

// HandleSaveGatewayNetworkConfig upserts a gateway's network sub-record
func (s *RESTServer) HandleSaveGatewayNetworkConfig(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid edge gateway id")
		return
	}

	var req struct {
		IPAddress      string `json:"ipAddress" validate:"max=50"`
		SubnetMask     string `json:"subnetMask" validate:"max=50"`
		GatewayAddress string `json:"gatewayAddress" validate:"max=50"`
		CPUModel       string `json:"cpuModel" validate:"max=200"`
		MemoryMB       int    `json:"memoryMb" validate:"min=0"`
		ConnUsername   string `json:"connUsername" validate:"max=100"`
		ConnSecret     string `json:"connSecret" validate:"max=200"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetEdgeGateway(r.Context(), id); err != nil {
		s.storeError(w, err, "edge gateway not found")
		return
	}

	cfg := &models.GatewayNetworkConfig{
		GatewayID:      id,
		IPAddress:      req.IPAddress,
		SubnetMask:     req.SubnetMask,
		GatewayAddress: req.GatewayAddress,
		CPUModel:       req.CPUModel,
		MemoryMB:       req.MemoryMB,
		ConnUsername:   req.ConnUsername,
		ConnSecret:     req.ConnSecret,
	}

	if err := s.store.SaveGatewayNetworkConfig(r.Context(), cfg); err != nil {
		s.storeError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, cfg)
}

// ========== Shared device helpers ==========

// decodeStatus parses a status change request body.
func (s *RESTServer) decodeStatus(w http.ResponseWriter, r *http.Request) (models.DeviceStatus, bool) {
	var req struct {
		Status string `json:"status" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}

	status := models.DeviceStatus(req.Status)
	if !status.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown status")
		return "", false
	}

	return status, true
}

// statusTransitionAllowed enforces that the assigned state is owned by the
// assignment service alone: this endpoint can never move a device into or
// out of assigned.
func (s *RESTServer) statusTransitionAllowed(w http.ResponseWriter, current, next models.DeviceStatus) bool {
	if current == models.StatusAssigned {
		s.respondError(w, http.StatusConflict, "device is assigned; release it first")
		return false
	}
	if next == models.StatusAssigned {
		s.respondError(w, http.StatusConflict, "assigned status is managed by assignments")
		return false
	}
	return true
}

func (s *RESTServer) auditStatusChange(r *http.Request, deviceID *uuid.UUID, description string) {
	if err := s.store.CreateAuditEvent(r.Context(), &models.AuditEvent{
		DeviceID:    deviceID,
		ActorID:     actorID(r),
		Type:        models.EventTypeDeviceStatusChanged,
		Level:       models.EventLevelInfo,
		Description: description,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record audit event")
	}
}
