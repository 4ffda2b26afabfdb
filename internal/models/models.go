package models

import "time"

// Door identifies a door position on the vehicle.
type Door string

const (
	DoorDriver    Door = "driver"
	DoorPassenger Door = "passenger"
	DoorRearLeft  Door = "rear_left"
	DoorRearRight Door = "rear_right"
)

// Window identifies a window position on the vehicle.
type Window string

const (
	WindowDriver    Window = "driver"
	WindowPassenger Window = "passenger"
)

// Wheel identifies a wheel position for tire pressure readings.
type Wheel string

const (
	WheelFrontLeft  Wheel = "front_left"
	WheelFrontRight Wheel = "front_right"
	WheelRearLeft   Wheel = "rear_left"
	WheelRearRight  Wheel = "rear_right"
)

// LockStatus is the reported lock state of a door or trunk.
type LockStatus string

const (
	Locked      LockStatus = "locked"
	Unlocked    LockStatus = "unlocked"
	LockUnknown LockStatus = "unknown"
)

// WindowStatus is the reported position of a window.
type WindowStatus string

const (
	WindowClosed  WindowStatus = "closed"
	WindowOpen    WindowStatus = "open"
	WindowUnknown WindowStatus = "unknown"
)

// Vehicle is one vehicle on the account, discovered via the account vehicle
// list. The VIN set is stable for the lifetime of the account.
type Vehicle struct {
	VIN      string `json:"vin"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Color    string `json:"color,omitempty"`

	// Capabilities holds the upstream service codes the vehicle reports as
	// both capable and enabled. It gates which commands may be dispatched.
	Capabilities map[string]bool `json:"capabilities"`
}

// Supports reports whether the vehicle advertises the command's service code.
func (v *Vehicle) Supports(cmd Command) bool {
	return v.Capabilities[cmd.Service]
}

// Location is a last-known GPS position.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TirePressure is a normalized per-wheel pressure reading.
type TirePressure struct {
	KPa     *float64 `json:"kpa,omitempty"`
	Warning bool     `json:"warning"`
}

// VehicleState is the uniform telemetry snapshot produced by the brand
// normalizers. Every field is optional: a brand or vehicle that does not
// report a value leaves it nil rather than carrying a fabricated default.
// One instance exists per vehicle and is replaced wholesale on each
// successful poll.
type VehicleState struct {
	VIN       string    `json:"vin"`
	Timestamp time.Time `json:"timestamp"`

	// EV battery and charging
	BatterySoC         *float64 `json:"battery_soc,omitempty"`       // percent
	DistanceToEmpty    *float64 `json:"distance_to_empty,omitempty"` // km, EV range
	RangeGas           *float64 `json:"range_gas,omitempty"`         // km
	RangeTotal         *float64 `json:"range_total,omitempty"`       // km
	Charging           *bool    `json:"charging,omitempty"`
	PluggedIn          *bool    `json:"plugged_in,omitempty"`
	ChargingLevel      *string  `json:"charging_level,omitempty"`
	TimeToFullChargeL2 *int     `json:"time_to_full_charge_l2,omitempty"` // minutes
	TimeToFullChargeL3 *int     `json:"time_to_full_charge_l3,omitempty"` // minutes

	// Combustion / shared
	Odometer          *float64 `json:"odometer,omitempty"`            // km
	FuelAmount        *float64 `json:"fuel_amount,omitempty"`         // percent
	FuelLow           *bool    `json:"fuel_low,omitempty"`
	OilLevel          *float64 `json:"oil_level,omitempty"`           // percent
	BatteryVoltage    *float64 `json:"battery_voltage,omitempty"`     // 12V battery
	DistanceToService *float64 `json:"distance_to_service,omitempty"` // km
	DaysToService     *int     `json:"days_to_service,omitempty"`

	// Closures and ignition
	Doors       map[Door]LockStatus     `json:"doors,omitempty"`
	Windows     map[Window]WindowStatus `json:"windows,omitempty"`
	TrunkLocked *bool                   `json:"trunk_locked,omitempty"`
	IgnitionOn  *bool                   `json:"ignition_on,omitempty"`
	EvRunning   *bool                   `json:"ev_running,omitempty"`

	Tires    map[Wheel]TirePressure `json:"tires,omitempty"`
	Location *Location              `json:"location,omitempty"`
}
