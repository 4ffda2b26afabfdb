package models

import "time"

// Command is a remote command understood by the Uconnect backends. Service is
// the upstream service code the mobile apps send, Path the API sub-resource
// it is posted to. These codes are reverse-engineered from the official apps
// and shared across brands.
type Command struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	Path    string `json:"path"`
	// Action distinguishes on/off variants that share a service code.
	Action string `json:"action,omitempty"`
}

var (
	CommandRefreshLocation = Command{Name: "refresh_location", Service: "VF", Path: "location"}
	CommandDeepRefresh     = Command{Name: "deep_refresh", Service: "DEEPREFRESH", Path: "ev"}
	CommandLights          = Command{Name: "lights", Service: "ROLIGHTS", Path: "remote"}
	CommandLightsHorn      = Command{Name: "lights_horn", Service: "HBLF", Path: "remote"}
	CommandPrecondOn       = Command{Name: "precond_on", Service: "ROPRECOND", Path: "remote", Action: "START"}
	CommandPrecondOff      = Command{Name: "precond_off", Service: "ROPRECOND", Path: "remote", Action: "STOP"}
	CommandTrunkLock       = Command{Name: "trunk_lock", Service: "ROTRUNKLOCK", Path: "remote"}
	CommandTrunkUnlock     = Command{Name: "trunk_unlock", Service: "ROTRUNKUNLOCK", Path: "remote"}
	CommandLiftgateLock    = Command{Name: "liftgate_lock", Service: "ROLIFTGATELOCK", Path: "remote"}
	CommandLiftgateUnlock  = Command{Name: "liftgate_unlock", Service: "ROLIFTGATEUNLOCK", Path: "remote"}
	CommandDoorsLock       = Command{Name: "doors_lock", Service: "RDL", Path: "remote"}
	CommandDoorsUnlock     = Command{Name: "doors_unlock", Service: "RDU", Path: "remote"}
	CommandEngineOn        = Command{Name: "engine_on", Service: "REON", Path: "remote"}
	CommandEngineOff       = Command{Name: "engine_off", Service: "REOFF", Path: "remote"}
	CommandChargeNow       = Command{Name: "charge_now", Service: "CNOW", Path: "ev/chargenow"}
	CommandHvacOn          = Command{Name: "hvac_on", Service: "HVAC", Path: "remote", Action: "START"}
	CommandHvacOff         = Command{Name: "hvac_off", Service: "HVAC", Path: "remote", Action: "STOP"}
	CommandComfortOn       = Command{Name: "comfort_on", Service: "COMFORT", Path: "remote", Action: "START"}
	CommandComfortOff      = Command{Name: "comfort_off", Service: "COMFORT", Path: "remote", Action: "STOP"}
)

// Commands lists every known command in a stable order.
var Commands = []Command{
	CommandRefreshLocation,
	CommandDeepRefresh,
	CommandLights,
	CommandLightsHorn,
	CommandPrecondOn,
	CommandPrecondOff,
	CommandTrunkLock,
	CommandTrunkUnlock,
	CommandLiftgateLock,
	CommandLiftgateUnlock,
	CommandDoorsLock,
	CommandDoorsUnlock,
	CommandEngineOn,
	CommandEngineOff,
	CommandChargeNow,
	CommandHvacOn,
	CommandHvacOff,
	CommandComfortOn,
	CommandComfortOff,
}

// CommandByName resolves a command from its external name.
func CommandByName(name string) (Command, bool) {
	for _, c := range Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// CommandOutcome is the lifecycle status of a submitted command.
type CommandOutcome string

const (
	// OutcomePending means the command has been created but not yet
	// submitted to the upstream API.
	OutcomePending CommandOutcome = "pending"
	// OutcomeAccepted means the API returned 2xx. Execution on the vehicle
	// is asynchronous and is not confirmed by the upstream API; a later
	// poll is the only way to observe the effect.
	OutcomeAccepted CommandOutcome = "accepted"
	// OutcomeRejected means the API refused the submission.
	OutcomeRejected CommandOutcome = "rejected"
)

// CommandRequest records one dispatched command.
type CommandRequest struct {
	ID          int64          `json:"id,omitempty"`
	VIN         string         `json:"vin"`
	Command     string         `json:"command"`
	SubmittedAt time.Time      `json:"submitted_at"`
	RequestID   string         `json:"request_id,omitempty"`
	Outcome     CommandOutcome `json:"outcome"`
}
