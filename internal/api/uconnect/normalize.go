package uconnect

import (
	"strings"
	"time"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

const (
	milesToKm = 1.60934
	psiToKPa  = 6.89476
	barToKPa  = 100.0
)

// Normalizer maps one brand family's raw telemetry payloads into the uniform
// VehicleState model. Absent fields stay nil ("unknown"), never a fabricated
// value; unrecognized fields are dropped. New brands are added as new
// variants, never by branching inside shared logic.
type Normalizer interface {
	Normalize(vin string, status *rawVehicleStatus, loc *rawLocation) *models.VehicleState
}

// normalizerFor selects the parser variant for an endpoint. The closed set
// currently splits on measurement convention: EU/Asia deployments default to
// metric units when the payload omits them, North America to imperial.
func normalizerFor(cfg EndpointConfig) Normalizer {
	switch cfg.Region {
	case RegionUS, RegionCanada, RegionUSCanada:
		return &northAmericaNormalizer{defaultDistanceUnit: "mi", defaultPressureUnit: "psi"}
	default:
		return &europeNormalizer{defaultDistanceUnit: "km", defaultPressureUnit: "kPa"}
	}
}

type europeNormalizer struct {
	defaultDistanceUnit string
	defaultPressureUnit string
}

func (n *europeNormalizer) Normalize(vin string, status *rawVehicleStatus, loc *rawLocation) *models.VehicleState {
	return normalize(vin, status, loc, n.defaultDistanceUnit, n.defaultPressureUnit)
}

type northAmericaNormalizer struct {
	defaultDistanceUnit string
	defaultPressureUnit string
}

func (n *northAmericaNormalizer) Normalize(vin string, status *rawVehicleStatus, loc *rawLocation) *models.VehicleState {
	return normalize(vin, status, loc, n.defaultDistanceUnit, n.defaultPressureUnit)
}

func normalize(vin string, status *rawVehicleStatus, loc *rawLocation, distUnit, pressUnit string) *models.VehicleState {
	st := &models.VehicleState{
		VIN:       vin,
		Timestamp: time.Now().UTC(),
	}

	if status == nil {
		if loc != nil {
			st.Location = normalizeLocation(loc)
		}
		return st
	}

	if ts := msToTime(status.Timestamp); !ts.IsZero() {
		st.Timestamp = ts.UTC()
	}

	if info := status.VehicleInfo; info != nil {
		if info.Odometer != nil {
			st.Odometer = toKm(info.Odometer.Odometer, distUnit)
		}
		if info.Fuel != nil {
			st.FuelAmount = info.Fuel.FuelAmountLevel.value()
			st.FuelLow = info.Fuel.IsFuelLevelLow
			st.RangeGas = toKm(info.Fuel.DistanceToEmpty, distUnit)
		}
		if info.OilLevel != nil {
			st.OilLevel = info.OilLevel.OilLevel.value()
		}
		if info.BatteryInfo != nil {
			st.BatteryVoltage = info.BatteryInfo.BatteryVoltage.Value.value()
		}
		if info.DaysToService != nil {
			d := int(*info.DaysToService)
			st.DaysToService = &d
		}
		if info.DistanceToService != nil {
			st.DistanceToService = toKm(info.DistanceToService.DistanceToService, distUnit)
		}
		st.Tires = normalizeTires(info.TyrePressure, pressUnit)
	}

	if ev := status.EvInfo; ev != nil {
		if b := ev.Battery; b != nil {
			st.BatterySoC = b.StateOfCharge.value()
			st.DistanceToEmpty = toKm(b.DistanceToEmpty, distUnit)
			st.RangeTotal = toKm(b.TotalRange, distUnit)
			st.PluggedIn = b.PlugInStatus
			if b.ChargingStatus != "" {
				charging := strings.EqualFold(b.ChargingStatus, "CHARGING")
				st.Charging = &charging
			}
			if b.ChargingLevel != "" {
				level := b.ChargingLevel
				st.ChargingLevel = &level
			}
			if v := b.TimeToFullyChargeL2.value(); v != nil {
				m := int(*v)
				st.TimeToFullChargeL2 = &m
			}
			if v := b.TimeToFullyChargeL3.value(); v != nil {
				m := int(*v)
				st.TimeToFullChargeL3 = &m
			}
		}
		if ev.IgnitionStatus != "" {
			on := strings.EqualFold(ev.IgnitionStatus, "ON")
			st.IgnitionOn = &on
		}
	}

	if vs := status.VehicleStatus; vs != nil {
		if vs.Doors != nil {
			doors := map[models.Door]models.LockStatus{}
			addDoor(doors, models.DoorDriver, vs.Doors.Driver)
			addDoor(doors, models.DoorPassenger, vs.Doors.Passenger)
			addDoor(doors, models.DoorRearLeft, vs.Doors.LeftRear)
			addDoor(doors, models.DoorRearRight, vs.Doors.RightRear)
			if len(doors) > 0 {
				st.Doors = doors
			}
		}
		if vs.Windows != nil {
			windows := map[models.Window]models.WindowStatus{}
			addWindow(windows, models.WindowDriver, vs.Windows.Driver)
			addWindow(windows, models.WindowPassenger, vs.Windows.Passenger)
			if len(windows) > 0 {
				st.Windows = windows
			}
		}
		if vs.Trunk != nil {
			locked := lockStatus(vs.Trunk.Status) == models.Locked
			st.TrunkLocked = &locked
		}
		if vs.IgnitionStatus != "" {
			on := strings.EqualFold(vs.IgnitionStatus, "ON")
			st.IgnitionOn = &on
		}
		if vs.EvRunning != "" {
			running := strings.EqualFold(vs.EvRunning, "ON")
			st.EvRunning = &running
		}
	}

	if loc != nil {
		st.Location = normalizeLocation(loc)
	}

	return st
}

func normalizeLocation(loc *rawLocation) *models.Location {
	lat := loc.Latitude.value()
	lon := loc.Longitude.value()
	if lat == nil || lon == nil {
		return nil
	}
	return &models.Location{
		Latitude:  *lat,
		Longitude: *lon,
		Altitude:  loc.Altitude.value(),
		Timestamp: msToTime(loc.TimeStamp).UTC(),
	}
}

func normalizeTires(tyres []rawTyre, defaultUnit string) map[models.Wheel]models.TirePressure {
	if len(tyres) == 0 {
		return nil
	}
	wheels := map[string]models.Wheel{
		"FL": models.WheelFrontLeft,
		"FR": models.WheelFrontRight,
		"RL": models.WheelRearLeft,
		"RR": models.WheelRearRight,
	}
	out := map[models.Wheel]models.TirePressure{}
	for _, t := range tyres {
		wheel, ok := wheels[strings.ToUpper(t.Type)]
		if !ok {
			continue
		}
		out[wheel] = models.TirePressure{
			KPa:     toKPa(t.Pressure, defaultUnit),
			Warning: t.Status != "" && !strings.EqualFold(t.Status, "NORMAL"),
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func addDoor(doors map[models.Door]models.LockStatus, door models.Door, raw *rawLockable) {
	if raw == nil {
		return
	}
	doors[door] = lockStatus(raw.Status)
}

func addWindow(windows map[models.Window]models.WindowStatus, window models.Window, raw *rawLockable) {
	if raw == nil {
		return
	}
	switch strings.ToUpper(raw.Status) {
	case "CLOSED":
		windows[window] = models.WindowClosed
	case "OPEN":
		windows[window] = models.WindowOpen
	default:
		windows[window] = models.WindowUnknown
	}
}

func lockStatus(s string) models.LockStatus {
	switch strings.ToUpper(s) {
	case "LOCKED", "CLOSED":
		return models.Locked
	case "UNLOCKED", "OPEN":
		return models.Unlocked
	default:
		return models.LockUnknown
	}
}

func toKm(m rawMeasure, defaultUnit string) *float64 {
	v := m.Value.value()
	if v == nil {
		return nil
	}
	unit := m.Unit
	if unit == "" {
		unit = defaultUnit
	}
	km := *v
	if strings.EqualFold(unit, "mi") || strings.EqualFold(unit, "miles") {
		km = *v * milesToKm
	}
	return &km
}

func toKPa(m rawMeasure, defaultUnit string) *float64 {
	v := m.Value.value()
	if v == nil {
		return nil
	}
	unit := m.Unit
	if unit == "" {
		unit = defaultUnit
	}
	kpa := *v
	switch {
	case strings.EqualFold(unit, "psi"):
		kpa = *v * psiToKPa
	case strings.EqualFold(unit, "bar"):
		kpa = *v * barToKPa
	}
	return &kpa
}
