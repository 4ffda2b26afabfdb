package uconnect

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// flexFloat decodes a numeric value that the backends deliver sometimes as a
// number, sometimes as a quoted string and sometimes as null. Brand schema
// drift must never break polling.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Unparseable strings are dropped, not surfaced as errors.
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func (f *flexFloat) value() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// rawMeasure is a value/unit pair as reported by the status endpoints.
type rawMeasure struct {
	Value *flexFloat `json:"value"`
	Unit  string     `json:"unit"`
}

// Login gateway payloads.

type rawAccountLogin struct {
	ErrorCode   int    `json:"errorCode"`
	StatusCode  int    `json:"statusCode"`
	UID         string `json:"UID"`
	SessionInfo struct {
		LoginToken string `json:"login_token"`
	} `json:"sessionInfo"`
}

type rawJWT struct {
	ErrorCode int    `json:"errorCode"`
	IDToken   string `json:"id_token"`
}

type rawTokenExchange struct {
	Token        string `json:"Token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	IdentityID   string `json:"IdentityId"`
}

type rawPinAuth struct {
	Token     string `json:"token"`
	Expiry    int64  `json:"expiry"`
	ExpiresIn int    `json:"expiresIn"`
}

// Account vehicle list.

type rawVehicleList struct {
	Vehicles []rawVehicle `json:"vehicles"`
}

type rawVehicle struct {
	VIN              string       `json:"vin"`
	Make             string       `json:"make"`
	ModelDescription string       `json:"modelDescription"`
	Nickname         string       `json:"nickname"`
	Year             *flexFloat   `json:"tsoModelYear"`
	Color            string       `json:"color"`
	Services         []rawService `json:"services"`
}

type rawService struct {
	Service        string `json:"service"`
	VehicleCapable bool   `json:"vehicleCapable"`
	ServiceEnabled bool   `json:"serviceEnabled"`
}

// Vehicle status. The three blocks come from the same endpoint but vary per
// brand and vehicle; any of them may be absent.

type rawVehicleStatus struct {
	VehicleInfo   *rawVehicleInfo `json:"vehicleInfo"`
	EvInfo        *rawEvInfo      `json:"evInfo"`
	VehicleStatus *rawStatusBlock `json:"vehicleStatus"`
	Timestamp     int64           `json:"timestamp"`
}

type rawVehicleInfo struct {
	Odometer *struct {
		Odometer rawMeasure `json:"odometer"`
	} `json:"odometer"`
	Fuel *struct {
		FuelAmountLevel *flexFloat `json:"fuelAmountLevel"`
		IsFuelLevelLow  *bool      `json:"isFuelLevelLow"`
		DistanceToEmpty rawMeasure `json:"distanceToEmpty"`
	} `json:"fuel"`
	OilLevel *struct {
		OilLevel *flexFloat `json:"oilLevel"`
	} `json:"oilLevel"`
	BatteryInfo *struct {
		BatteryStatus  string     `json:"batteryStatus"`
		BatteryVoltage rawMeasure `json:"batteryVoltage"`
	} `json:"batteryInfo"`
	TyrePressure  []rawTyre  `json:"tyrePressure"`
	DaysToService *flexFloat `json:"daysToService"`
	DistanceToService *struct {
		DistanceToService rawMeasure `json:"distanceToService"`
	} `json:"distanceToService"`
	Timestamp int64 `json:"timestamp"`
}

type rawTyre struct {
	Type     string     `json:"type"` // FL, FR, RL, RR
	Pressure rawMeasure `json:"pressure"`
	Status   string     `json:"status"` // NORMAL or a warning code
}

type rawEvInfo struct {
	Battery *struct {
		StateOfCharge       *flexFloat `json:"stateOfCharge"`
		ChargingStatus      string     `json:"chargingStatus"` // CHARGING, NOT_CHARGING
		ChargingLevel       string     `json:"chargingLevel"`  // LEVEL_1, LEVEL_2, LEVEL_3
		PlugInStatus        *bool      `json:"plugInStatus"`
		DistanceToEmpty     rawMeasure `json:"distanceToEmpty"`
		TotalRange          rawMeasure `json:"totalRange"`
		TimeToFullyChargeL2 *flexFloat `json:"timeToFullyChargeL2"`
		TimeToFullyChargeL3 *flexFloat `json:"timeToFullyChargeL3"`
	} `json:"battery"`
	IgnitionStatus string `json:"ignitionStatus"` // ON, OFF
	Timestamp      int64  `json:"timestamp"`
}

type rawStatusBlock struct {
	Doors *struct {
		Driver    *rawLockable `json:"driver"`
		Passenger *rawLockable `json:"passenger"`
		LeftRear  *rawLockable `json:"leftRear"`
		RightRear *rawLockable `json:"rightRear"`
	} `json:"doors"`
	Windows *struct {
		Driver    *rawLockable `json:"driver"`
		Passenger *rawLockable `json:"passenger"`
	} `json:"windows"`
	Trunk          *rawLockable `json:"trunk"`
	IgnitionStatus string       `json:"ignitionStatus"`
	EvRunning      string       `json:"evRunning"`
}

type rawLockable struct {
	Status string `json:"status"` // LOCKED/UNLOCKED or CLOSED/OPEN
}

// rawLocation is the last-known position endpoint payload.
type rawLocation struct {
	Latitude  *flexFloat `json:"latitude"`
	Longitude *flexFloat `json:"longitude"`
	Altitude  *flexFloat `json:"altitude"`
	TimeStamp int64      `json:"timeStamp"`
}

// rawCommandResponse is returned on command submission. Execution on the
// vehicle is asynchronous; this only acknowledges delivery to the backend.
type rawCommandResponse struct {
	ResponseStatus  string `json:"responseStatus"`
	CorrelationID   string `json:"correlationId"`
	StatusTimestamp int64  `json:"statusTimestamp"`
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
