package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus is the lifecycle status shared by smart meters and edge
// gateways. Only the assignment service moves a device between available
// and assigned; maintenance and decommissioned are administrative states.
type DeviceStatus string

const (
	StatusAvailable      DeviceStatus = "available"
	StatusAssigned       DeviceStatus = "assigned"
	StatusMaintenance    DeviceStatus = "maintenance"
	StatusDecommissioned DeviceStatus = "decommissioned"
)

// Valid reports whether s is a known device status.
func (s DeviceStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusDecommissioned:
		return true
	}
	return false
}

// SmartMeter is a leaf metering device with a unique serial number.
type SmartMeter struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	SerialNumber    string       `json:"serialNumber" db:"serial_number"`
	Manufacturer    string       `json:"manufacturer" db:"manufacturer"`
	Model           string       `json:"model" db:"model"`
	FirmwareVersion string       `json:"firmwareVersion,omitempty" db:"firmware_version"`
	Status          DeviceStatus `json:"status" db:"status"`

	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	Metadata Variables `json:"metadata,omitempty" db:"metadata"`
}

// EdgeGateway aggregates readings from multiple smart meters.
type EdgeGateway struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	SerialNumber    string       `json:"serialNumber" db:"serial_number"`
	Name            string       `json:"name" db:"name"`
	Model           string       `json:"model,omitempty" db:"model"`
	FirmwareVersion string       `json:"firmwareVersion,omitempty" db:"firmware_version"`
	Status          DeviceStatus `json:"status" db:"status"`

	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	FirstSeenAt *time.Time `json:"firstSeenAt,omitempty" db:"first_seen_at"`

	Metadata Variables `json:"metadata,omitempty" db:"metadata"`
}

// GatewayNetworkConfig is the independently fetchable network sub-record of
// an edge gateway: addressing, technical specs and connection credentials.
type GatewayNetworkConfig struct {
	GatewayID uuid.UUID `json:"gatewayId" db:"gateway_id"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	IPAddress      string `json:"ipAddress,omitempty" db:"ip_address"`
	SubnetMask     string `json:"subnetMask,omitempty" db:"subnet_mask"`
	GatewayAddress string `json:"gatewayAddress,omitempty" db:"gateway_address"`

	CPUModel string `json:"cpuModel,omitempty" db:"cpu_model"`
	MemoryMB int    `json:"memoryMb,omitempty" db:"memory_mb"`

	ConnUsername string `json:"connUsername,omitempty" db:"conn_username"`
	ConnSecret   string `json:"-" db:"conn_secret"`
}
