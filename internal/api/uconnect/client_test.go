package uconnect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// fakeBackend serves the vehicle API on top of the fakeGateway auth
// endpoints.
type fakeBackend struct {
	g *fakeGateway

	statusCalls   int32
	evCalls       int32
	locationCalls int32
	commandCalls  int32
	lastCommand   []byte

	evStatus int
	server   *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{evStatus: http.StatusOK}
	b.g = &fakeGateway{t: t}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	b.g.server = b.server
	return b
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.Contains(r.URL.Path, "/vehicles") && strings.HasSuffix(r.URL.Path, "/status"):
		atomic.AddInt32(&b.statusCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"timestamp": 1700000000000,
			"vehicleInfo": map[string]interface{}{
				"odometer": map[string]interface{}{
					"odometer": map[string]interface{}{"value": 100, "unit": "km"},
				},
			},
		})

	case strings.HasSuffix(r.URL.Path, "/ev"):
		atomic.AddInt32(&b.evCalls, 1)
		if b.evStatus != http.StatusOK {
			w.WriteHeader(b.evStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"battery": map[string]interface{}{
				"stateOfCharge": 66,
			},
		})

	case strings.HasSuffix(r.URL.Path, "/location/lastknown"):
		atomic.AddInt32(&b.locationCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"latitude":  45.07,
			"longitude": 7.68,
		})

	case strings.HasSuffix(r.URL.Path, "/vehicles") || strings.Contains(r.URL.RawQuery, "stage=ALL"):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"vehicles": []map[string]interface{}{
				{
					"vin":              "VIN1",
					"make":             "FIAT",
					"modelDescription": "500e",
					"nickname":         "Cinquecento",
					"tsoModelYear":     "2022",
					"services": []map[string]interface{}{
						{"service": "RDL", "vehicleCapable": true, "serviceEnabled": true},
						{"service": "RDU", "vehicleCapable": true, "serviceEnabled": true},
						{"service": "REON", "vehicleCapable": true, "serviceEnabled": false},
						{"service": "HBLF", "vehicleCapable": false, "serviceEnabled": true},
					},
				},
				{
					"vin": "VIN2",
				},
				{
					// Entries without a VIN are skipped.
					"make": "JEEP",
				},
			},
		})

	case r.Method == "POST" && strings.Contains(r.URL.Path, "/vehicles/"):
		atomic.AddInt32(&b.commandCalls, 1)
		b.lastCommand, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"responseStatus": "pending",
			"correlationId":  "corr-1",
		})

	default:
		b.g.handle(w, r)
	}
}

func newTestClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	cfg := EndpointConfig{
		Name:        "Fiat (EU)",
		Brand:       BrandFiat,
		Region:      RegionEU,
		LoginURL:    b.server.URL + "/gigya",
		LoginAPIKey: "login-key",
		TokenURL:    b.server.URL + "/token",
		APIURL:      b.server.URL,
		APIKey:      "api-key",
		AuthURL:     b.server.URL,
		AuthAPIKey:  "auth-key",
		Locale:      "de-de",
	}
	transport := NewTransport(cfg, TransportOptions{
		Timeout:        5 * time.Second,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, zap.NewNop())
	auth := NewSessionManager(cfg, Credentials{
		Username: "user@example.com",
		Password: "secret",
		PIN:      "1234",
	}, transport, zap.NewNop(), nil)
	return NewClient(cfg, transport, auth, zap.NewNop())
}

func TestListVehiclesCapabilityGating(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	vehicles, err := c.ListVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	v := vehicles[0]
	assert.Equal(t, "VIN1", v.VIN)
	assert.Equal(t, "FIAT", v.Make)
	assert.Equal(t, "500e", v.Model)
	assert.Equal(t, 2022, v.Year)

	// Only services that are both vehicle-capable and enabled count.
	assert.True(t, v.Capabilities["RDL"])
	assert.True(t, v.Capabilities["RDU"])
	assert.False(t, v.Capabilities["REON"])
	assert.False(t, v.Capabilities["HBLF"])

	assert.True(t, v.Supports(models.CommandDoorsLock))
	assert.False(t, v.Supports(models.CommandEngineOn))

	// Upstream order is preserved.
	assert.Equal(t, "VIN2", vehicles[1].VIN)
}

func TestFetchStateShallow(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	st, err := c.FetchState(context.Background(), "VIN1", DepthShallow)
	require.NoError(t, err)

	require.NotNil(t, st.Odometer)
	assert.InDelta(t, 100, *st.Odometer, 0.001)
	assert.Nil(t, st.BatterySoC)
	assert.Nil(t, st.Location)
	assert.EqualValues(t, 0, atomic.LoadInt32(&b.evCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&b.locationCalls))
}

func TestFetchStateDeep(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	st, err := c.FetchState(context.Background(), "VIN1", DepthDeep)
	require.NoError(t, err)

	require.NotNil(t, st.BatterySoC)
	assert.InDelta(t, 66, *st.BatterySoC, 0.001)
	require.NotNil(t, st.Location)
	assert.InDelta(t, 45.07, st.Location.Latitude, 0.001)
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.evCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.locationCalls))
}

func TestFetchStateDeepToleratesUnsupportedEV(t *testing.T) {
	b := newFakeBackend(t)
	b.evStatus = http.StatusNotFound
	c := newTestClient(t, b)

	st, err := c.FetchState(context.Background(), "VIN1", DepthDeep)
	require.NoError(t, err)

	// Shallow data survives; the unsupported endpoint is simply absent.
	require.NotNil(t, st.Odometer)
	assert.Nil(t, st.BatterySoC)
	require.NotNil(t, st.Location)
}

func TestSubmitCommandPayload(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	id, err := c.SubmitCommand(context.Background(), "VIN1", models.CommandPrecondOn, "pin-token")
	require.NoError(t, err)
	assert.Equal(t, "corr-1", id)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(b.lastCommand, &payload))
	assert.Equal(t, "ROPRECOND", payload["command"])
	assert.Equal(t, "pin-token", payload["pinAuth"])
	assert.Equal(t, "START", payload["action"])
}

func TestSubmitCommandOmitsActionWhenUnset(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	_, err := c.SubmitCommand(context.Background(), "VIN1", models.CommandDoorsLock, "pin-token")
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(b.lastCommand, &payload))
	assert.Equal(t, "RDL", payload["command"])
	_, hasAction := payload["action"]
	assert.False(t, hasAction)
}
