// Package events publishes assignment lifecycle notifications over NATS for
// downstream consumers (operations dashboard, notification service).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DeviceType labels the kind of device in a notification.
type DeviceType string

const (
	DeviceTypeSmartMeter  DeviceType = "smart_meter"
	DeviceTypeEdgeGateway DeviceType = "edge_gateway"
)

// AssignmentEvent is the wire payload for assignment notifications.
type AssignmentEvent struct {
	AssignmentID uuid.UUID  `json:"assignment_id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	DeviceID     uuid.UUID  `json:"device_id"`
	DeviceType   DeviceType `json:"device_type"`
	Time         time.Time  `json:"time"`
}

// Publisher publishes assignment events. A nil Publisher is a no-op so the
// server can run in standalone mode without NATS.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a publisher on an established NATS connection.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// DeviceAssigned publishes assignment.<company>.device.<device>.assigned.
func (p *Publisher) DeviceAssigned(assignmentID, companyID, deviceID uuid.UUID, deviceType DeviceType) {
	p.publish("assigned", assignmentID, companyID, deviceID, deviceType)
}

// DeviceReleased publishes assignment.<company>.device.<device>.released.
func (p *Publisher) DeviceReleased(assignmentID, companyID, deviceID uuid.UUID, deviceType DeviceType) {
	p.publish("released", assignmentID, companyID, deviceID, deviceType)
}

func (p *Publisher) publish(action string, assignmentID, companyID, deviceID uuid.UUID, deviceType DeviceType) {
	if p == nil || p.nc == nil {
		return
	}

	event := AssignmentEvent{
		AssignmentID: assignmentID,
		CompanyID:    companyID,
		DeviceID:     deviceID,
		DeviceType:   deviceType,
		Time:         time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal assignment event")
		return
	}

	subject := fmt.Sprintf("assignment.%s.device.%s.%s", companyID, deviceID, action)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish assignment event")
	}
}
