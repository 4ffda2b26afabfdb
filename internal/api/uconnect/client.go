package uconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// Depth selects how much telemetry a fetch pulls.
type Depth string

const (
	// DepthShallow is the default periodic poll against the status endpoint.
	DepthShallow Depth = "shallow"
	// DepthDeep additionally pulls the richer EV detail and last-known
	// location endpoints. Slower and more expensive upstream.
	DepthDeep Depth = "deep"
)

// Client is the vehicle catalog and telemetry client for one account. It
// drives the transport with a session obtained from the session manager and
// hands raw payloads to the brand normalizer.
type Client struct {
	cfg        EndpointConfig
	transport  *Transport
	auth       *SessionManager
	normalizer Normalizer
	logger     *zap.Logger
}

// NewClient builds a client for the resolved endpoint.
func NewClient(cfg EndpointConfig, transport *Transport, auth *SessionManager, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		transport:  transport,
		auth:       auth,
		normalizer: normalizerFor(cfg),
		logger:     logger,
	}
}

// Auth exposes the session manager owning this client's credentials.
func (c *Client) Auth() *SessionManager { return c.auth }

// ListVehicles fetches the account's vehicles. The VIN set is stable across
// calls barring account changes; upstream order is preserved so collaborators
// iterate deterministically.
func (c *Client) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	session, err := c.auth.EnsureValidSession(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v4/accounts/%s/vehicles?stage=ALL", c.cfg.APIURL, session.AccountID)
	resp, err := c.authorizedGet(ctx, endpoint, session)
	if err != nil {
		return nil, err
	}

	var list rawVehicleList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, &APIError{Kind: APITransient, Err: fmt.Errorf("decode vehicle list: %w", err)}
	}

	vehicles := make([]models.Vehicle, 0, len(list.Vehicles))
	for _, raw := range list.Vehicles {
		if raw.VIN == "" {
			continue
		}
		v := models.Vehicle{
			VIN:          raw.VIN,
			Make:         raw.Make,
			Model:        raw.ModelDescription,
			Nickname:     raw.Nickname,
			Color:        raw.Color,
			Capabilities: map[string]bool{},
		}
		if y := raw.Year.value(); y != nil {
			v.Year = int(*y)
		}
		for _, svc := range raw.Services {
			if svc.VehicleCapable && svc.ServiceEnabled {
				v.Capabilities[svc.Service] = true
			}
		}
		vehicles = append(vehicles, v)
	}

	c.logger.Debug("Listed vehicles", zap.Int("count", len(vehicles)))
	return vehicles, nil
}

// FetchState polls one vehicle and normalizes the brand payload into the
// uniform state model. Deep fetches add the EV detail and last-known
// location endpoints on top of the shallow status.
func (c *Client) FetchState(ctx context.Context, vin string, depth Depth) (*models.VehicleState, error) {
	session, err := c.auth.EnsureValidSession(ctx)
	if err != nil {
		return nil, err
	}

	statusURL := fmt.Sprintf("%s/v2/accounts/%s/vehicles/%s/status", c.cfg.APIURL, session.AccountID, vin)
	resp, err := c.authorizedGet(ctx, statusURL, session)
	if err != nil {
		return nil, err
	}

	var status rawVehicleStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return nil, &APIError{Kind: APITransient, Err: fmt.Errorf("decode vehicle status: %w", err)}
	}

	var loc *rawLocation
	if depth == DepthDeep {
		evURL := fmt.Sprintf("%s/v2/accounts/%s/vehicles/%s/ev", c.cfg.APIURL, session.AccountID, vin)
		if evResp, evErr := c.authorizedGet(ctx, evURL, session); evErr == nil {
			// The EV block replaces the shallow one when the richer endpoint
			// answers. Vehicles without the endpoint simply keep the shallow
			// data: not_supported is a permanent condition, not an error.
			var ev rawEvInfo
			if json.Unmarshal(evResp.Body, &ev) == nil && ev.Battery != nil {
				status.EvInfo = &ev
			}
		} else if !isNotSupported(evErr) {
			c.logger.Debug("EV detail fetch failed", zap.String("vin", vin), zap.Error(evErr))
		}

		locURL := fmt.Sprintf("%s/v1/accounts/%s/vehicles/%s/location/lastknown", c.cfg.APIURL, session.AccountID, vin)
		if locResp, locErr := c.authorizedGet(ctx, locURL, session); locErr == nil {
			var l rawLocation
			if json.Unmarshal(locResp.Body, &l) == nil {
				loc = &l
			}
		} else if !isNotSupported(locErr) {
			c.logger.Debug("Location fetch failed", zap.String("vin", vin), zap.Error(locErr))
		}
	}

	return c.normalizer.Normalize(vin, &status, loc), nil
}

// SubmitCommand posts a remote command. A 2xx response means the backend
// accepted the command for delivery; execution on the vehicle is
// asynchronous and not confirmed here.
func (c *Client) SubmitCommand(ctx context.Context, vin string, cmd models.Command, pinToken string) (string, error) {
	session, err := c.auth.EnsureValidSession(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"command": cmd.Service,
		"pinAuth": pinToken,
	}
	if cmd.Action != "" {
		payload["action"] = cmd.Action
	}
	body, _ := json.Marshal(payload)

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/vehicles/%s/%s", c.cfg.APIURL, session.AccountID, vin, cmd.Path)
	resp, err := c.transport.Do(ctx, "POST", endpoint, map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	}, body)
	if err != nil {
		return "", mapAPIError(err)
	}

	var cr rawCommandResponse
	if err := json.Unmarshal(resp.Body, &cr); err != nil {
		// Some deployments return an empty body on acceptance.
		return "", nil
	}
	return cr.CorrelationID, nil
}

func (c *Client) authorizedGet(ctx context.Context, url string, session *Session) (*Response, error) {
	resp, err := c.transport.Do(ctx, "GET", url, map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	}, nil)
	if err != nil {
		return nil, mapAPIError(err)
	}
	return resp, nil
}

func mapAPIError(err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		switch {
		case te.Kind == TransportHTTPStatus && (te.Status == http.StatusUnauthorized || te.Status == http.StatusForbidden):
			return &APIError{Kind: APIUnauthorized, Err: err}
		case te.Kind == TransportHTTPStatus && te.Status == http.StatusNotFound:
			return &APIError{Kind: APINotSupported, Err: err}
		default:
			return &APIError{Kind: APITransient, Err: err}
		}
	}
	return err
}

func isNotSupported(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == APINotSupported
}
