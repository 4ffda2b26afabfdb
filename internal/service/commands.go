package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// CommandAPI is the slice of the cloud client the dispatcher needs.
type CommandAPI interface {
	SubmitCommand(ctx context.Context, vin string, cmd models.Command, pinToken string) (string, error)
}

// Dispatcher submits remote commands. It gates on the per-vehicle capability
// set before touching the network, attaches a PIN auth token, and records
// every attempt in the command log.
type Dispatcher struct {
	api     CommandAPI
	auth    AuthManager
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a command dispatcher. store may be nil.
func NewDispatcher(api CommandAPI, auth AuthManager, store Store, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{api: api, auth: auth, store: store, metrics: m, logger: logger}
}

// Dispatch submits cmd to vehicle. Unsupported commands fail before any
// network activity. A nil error means the backend accepted the command for
// asynchronous delivery; it never confirms execution on the vehicle.
func (d *Dispatcher) Dispatch(ctx context.Context, vehicle *models.Vehicle, cmd models.Command) (*models.CommandRequest, error) {
	if !vehicle.Supports(cmd) {
		err := &uconnect.CommandError{Kind: uconnect.CommandUnsupported, Command: cmd.Name, VIN: vehicle.VIN}
		d.metrics.ObserveCommand(cmd.Name, err)
		return nil, err
	}

	req := &models.CommandRequest{
		VIN:         vehicle.VIN,
		Command:     cmd.Name,
		SubmittedAt: time.Now().UTC(),
		Outcome:     models.OutcomePending,
	}

	token, err := d.auth.CommandAuthToken(ctx)
	if err != nil {
		return d.fail(ctx, req, cmd, classifyCommandErr(cmd.Name, vehicle.VIN, err))
	}

	requestID, err := d.api.SubmitCommand(ctx, vehicle.VIN, cmd, token.Token)
	if err != nil {
		return d.fail(ctx, req, cmd, classifyCommandErr(cmd.Name, vehicle.VIN, err))
	}

	req.RequestID = requestID
	req.Outcome = models.OutcomeAccepted
	d.saveRequest(ctx, req)
	d.metrics.ObserveCommand(cmd.Name, nil)

	d.logger.Info("Command accepted",
		zap.String("vin", vehicle.VIN),
		zap.String("command", cmd.Name),
		zap.String("request_id", requestID))
	return req, nil
}

func (d *Dispatcher) fail(ctx context.Context, req *models.CommandRequest, cmd models.Command, err error) (*models.CommandRequest, error) {
	req.Outcome = models.OutcomeRejected
	d.saveRequest(ctx, req)
	d.metrics.ObserveCommand(cmd.Name, err)
	d.logger.Warn("Command dispatch failed",
		zap.String("vin", req.VIN),
		zap.String("command", cmd.Name),
		zap.Error(err))
	return nil, err
}

func (d *Dispatcher) saveRequest(ctx context.Context, req *models.CommandRequest) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveCommand(ctx, req); err != nil {
		d.logger.Warn("Failed to persist command request",
			zap.String("vin", req.VIN),
			zap.String("command", req.Command),
			zap.Error(err))
	}
}

// classifyCommandErr wraps lower-layer failures into the command taxonomy.
// PIN problems and 401/403-class responses are unauthorized and call for
// operator action; everything else is transient and safe to retry.
func classifyCommandErr(command, vin string, err error) error {
	var ce *uconnect.CommandError
	if errors.As(err, &ce) {
		return err
	}

	kind := uconnect.CommandTransient
	var ae *uconnect.AuthError
	if errors.As(err, &ae) {
		switch ae.Reason {
		case uconnect.AuthInvalidPIN, uconnect.AuthPINRequired, uconnect.AuthReauthRequired, uconnect.AuthInvalidCredentials:
			kind = uconnect.CommandUnauthorized
		}
	} else if uconnect.IsUnauthorized(err) {
		kind = uconnect.CommandUnauthorized
	}

	return &uconnect.CommandError{Kind: kind, Command: command, VIN: vin, Err: err}
}
