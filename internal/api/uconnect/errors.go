package uconnect

import (
	"errors"
	"fmt"
)

// ConfigError means a brand/region pair has no registry entry. Fatal at
// setup time.
type ConfigError struct {
	Brand  string
	Region string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown brand/region: %s/%s", e.Brand, e.Region)
}

// AuthReason classifies authentication failures.
type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthInvalidPIN         AuthReason = "invalid_pin"
	AuthPINRequired        AuthReason = "pin_required"
	AuthReauthRequired     AuthReason = "reauth_required"
	AuthNetwork            AuthReason = "network"
	AuthUnknown            AuthReason = "unknown"
)

// AuthError is surfaced to the caller instead of being retried; the host is
// expected to re-prompt for credentials on reauth_required.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportKind classifies transport failures.
type TransportKind string

const (
	TransportTimeout    TransportKind = "timeout"
	TransportConnection TransportKind = "connection"
	TransportHTTPStatus TransportKind = "http_status"
)

// TransportError carries the failure class and, for http_status, the code.
type TransportError struct {
	Kind   TransportKind
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Kind == TransportHTTPStatus {
		return fmt.Sprintf("transport: http status %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is worth retrying: network
// errors and 5xx responses. 4xx responses are surfaced immediately so the
// session manager can react.
func (e *TransportError) Retryable() bool {
	if e.Kind != TransportHTTPStatus {
		return true
	}
	return e.Status >= 500 || e.Status == 429
}

// APIKind classifies API-level failures.
type APIKind string

const (
	APINotSupported APIKind = "not_supported"
	APITransient    APIKind = "transient"
	APIUnauthorized APIKind = "unauthorized"
)

// APIError is a failure interpreting or obtaining a payload. not_supported
// is a permanent per-vehicle condition and is never retried.
type APIError struct {
	Kind APIKind
	Err  error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("api: %s", e.Kind)
}

func (e *APIError) Unwrap() error { return e.Err }

// CommandKind classifies command dispatch failures.
type CommandKind string

const (
	CommandUnsupported  CommandKind = "unsupported"
	CommandUnauthorized CommandKind = "unauthorized"
	CommandTransient    CommandKind = "transient"
)

// CommandError is a failure to dispatch a remote command.
type CommandError struct {
	Kind    CommandKind
	Command string
	VIN     string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %s on %s: %s: %v", e.Command, e.VIN, e.Kind, e.Err)
	}
	return fmt.Sprintf("command %s on %s: %s", e.Command, e.VIN, e.Kind)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsReauthRequired reports whether err carries the reauthentication-required
// signal from any layer.
func IsReauthRequired(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason == AuthReauthRequired
	}
	return false
}

// IsUnauthorized reports whether err is a 401/403-class failure from any
// layer.
func IsUnauthorized(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == TransportHTTPStatus && (te.Status == 401 || te.Status == 403)
	}
	var pe *APIError
	if errors.As(err, &pe) {
		return pe.Kind == APIUnauthorized
	}
	return false
}
