package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

type fakeAPI struct {
	mu          sync.Mutex
	vehicles    []models.Vehicle
	listErr     error
	fetchCalls  map[string]int
	fetchDelay  time.Duration
	fetchErr    error
	submitCalls int32
	submitErr   error
	requestID   string
	// doors tracks the lock state the backend would report after lock and
	// unlock commands, keyed by VIN.
	doors map[string]models.LockStatus
}

func newFakeAPI(vehicles ...models.Vehicle) *fakeAPI {
	return &fakeAPI{
		vehicles:   vehicles,
		fetchCalls: make(map[string]int),
		requestID:  "req-1",
		doors:      make(map[string]models.LockStatus),
	}
}

func (f *fakeAPI) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.vehicles, nil
}

func (f *fakeAPI) FetchState(ctx context.Context, vin string, depth uconnect.Depth) (*models.VehicleState, error) {
	f.mu.Lock()
	f.fetchCalls[vin]++
	delay := f.fetchDelay
	err := f.fetchErr
	locks := f.doors[vin]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	st := &models.VehicleState{VIN: vin, Timestamp: time.Now()}
	if locks != "" {
		st.Doors = map[models.Door]models.LockStatus{
			models.DoorDriver:    locks,
			models.DoorPassenger: locks,
		}
	}
	return st, nil
}

func (f *fakeAPI) SubmitCommand(ctx context.Context, vin string, cmd models.Command, pinToken string) (string, error) {
	atomic.AddInt32(&f.submitCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	// Echo lock commands into the state later polls report.
	switch cmd.Service {
	case "RDL":
		f.doors[vin] = models.Locked
	case "RDU":
		f.doors[vin] = models.Unlocked
	}
	return f.requestID, nil
}

func (f *fakeAPI) calls(vin string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[vin]
}

func (f *fakeAPI) setFetchErr(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

type fakeAuth struct {
	mu            sync.Mutex
	reauth        bool
	invalidateErr error
	pinToken      *uconnect.CommandAuthToken
	pinErr        error
	pinCalls      int32
}

func (f *fakeAuth) ReauthRequired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reauth
}

func (f *fakeAuth) Invalidate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invalidateErr != nil {
		f.reauth = true
	}
	return f.invalidateErr
}

func (f *fakeAuth) CommandAuthToken(ctx context.Context) (*uconnect.CommandAuthToken, error) {
	atomic.AddInt32(&f.pinCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return nil, f.pinErr
	}
	if f.pinToken != nil {
		return f.pinToken, nil
	}
	return &uconnect.CommandAuthToken{Token: "pin-token", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (f *fakeAuth) State() string { return "authenticated" }

func (f *fakeAuth) Reauthenticate(ctx context.Context, creds uconnect.Credentials) (*uconnect.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reauth = false
	return &uconnect.Session{AccessToken: "tok"}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	vehicles []models.Vehicle
	states   []*models.VehicleState
	commands []*models.CommandRequest
}

func (f *fakeStore) UpsertVehicle(ctx context.Context, v *models.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles = append(f.vehicles, *v)
	return nil
}

func (f *fakeStore) SaveState(ctx context.Context, s *models.VehicleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return nil
}

func (f *fakeStore) SaveCommand(ctx context.Context, r *models.CommandRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, r)
	return nil
}

func testVehicle(vin string, services ...string) models.Vehicle {
	caps := map[string]bool{}
	for _, s := range services {
		caps[s] = true
	}
	return models.Vehicle{VIN: vin, Make: "FIAT", Capabilities: caps}
}

func newTestPoller(api *fakeAPI, auth *fakeAuth, store Store, onReauth func()) *Poller {
	return NewPoller(PollerConfig{
		Interval:     time.Hour,
		FetchTimeout: 5 * time.Second,
	}, api, auth, store, metrics.New(), zap.NewNop(), nil, onReauth)
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	api.fetchDelay = 50 * time.Millisecond
	p := newTestPoller(api, &fakeAuth{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
			assert.NoError(t, err)
			assert.NotNil(t, st)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, api.calls("VIN1"))
}

func TestRefreshDifferentVINsRunIndependently(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"), testVehicle("VIN2"))
	p := newTestPoller(api, &fakeAuth{}, nil, nil)

	_, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.NoError(t, err)
	_, err = p.Refresh(context.Background(), "VIN2", uconnect.DepthShallow)
	require.NoError(t, err)

	assert.Equal(t, 1, api.calls("VIN1"))
	assert.Equal(t, 1, api.calls("VIN2"))
}

func TestRefreshKeepsStaleStateOnFailure(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	p := newTestPoller(api, &fakeAuth{}, nil, nil)

	first, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.NoError(t, err)
	require.NotNil(t, first)

	api.setFetchErr(&uconnect.APIError{Kind: uconnect.APITransient})

	stale, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.Error(t, err)
	assert.Same(t, first, stale)

	cached, ok := p.GetState("VIN1")
	require.True(t, ok)
	assert.Same(t, first, cached)
	assert.Error(t, p.LastError("VIN1"))
}

func TestRefreshClearsLastErrorOnSuccess(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	p := newTestPoller(api, &fakeAuth{}, nil, nil)

	api.setFetchErr(&uconnect.APIError{Kind: uconnect.APITransient})
	_, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.Error(t, err)

	api.setFetchErr(nil)
	_, err = p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.NoError(t, err)
	assert.NoError(t, p.LastError("VIN1"))
}

func TestUnauthorizedFetchTriggersInvalidate(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	auth := &fakeAuth{}
	p := newTestPoller(api, auth, nil, nil)

	api.setFetchErr(&uconnect.APIError{Kind: uconnect.APIUnauthorized})
	_, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.Error(t, err)

	// Invalidate succeeded, so polling continues.
	assert.False(t, auth.ReauthRequired())
}

func TestReauthFailureStopsPolling(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	auth := &fakeAuth{invalidateErr: &uconnect.AuthError{Reason: uconnect.AuthReauthRequired}}

	reauthCh := make(chan struct{}, 1)
	p := newTestPoller(api, auth, nil, func() {
		reauthCh <- struct{}{}
	})
	require.NoError(t, p.Start(context.Background()))

	// Let the startup poll finish before injecting the failure so the
	// explicit refresh below does not coalesce with it.
	require.Eventually(t, func() bool {
		return api.calls("VIN1") >= 1
	}, time.Second, 10*time.Millisecond)

	api.setFetchErr(&uconnect.APIError{Kind: uconnect.APIUnauthorized})
	_, err := p.Refresh(context.Background(), "VIN1", uconnect.DepthShallow)
	require.Error(t, err)

	select {
	case <-reauthCh:
	case <-time.After(time.Second):
		t.Fatal("expected reauth notification")
	}

	// Resume restarts the schedule once reauthentication happened.
	auth.mu.Lock()
	auth.reauth = false
	auth.invalidateErr = nil
	auth.mu.Unlock()
	api.setFetchErr(nil)

	require.NoError(t, p.Resume(context.Background()))
	p.Stop()
}

func TestStartSyncsCatalogAndPersists(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1", "RDL"), testVehicle("VIN2"))
	store := &fakeStore{}
	p := newTestPoller(api, &fakeAuth{}, store, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	vehicles := p.Vehicles()
	require.Len(t, vehicles, 2)
	assert.Equal(t, "VIN1", vehicles[0].VIN)
	assert.Equal(t, "VIN2", vehicles[1].VIN)

	store.mu.Lock()
	persisted := len(store.vehicles)
	store.mu.Unlock()
	assert.Equal(t, 2, persisted)

	v, ok := p.Vehicle("VIN1")
	require.True(t, ok)
	assert.True(t, v.Capabilities["RDL"])

	_, ok = p.Vehicle("VIN3")
	assert.False(t, ok)
}

func TestStartFailsWhenCatalogUnavailable(t *testing.T) {
	api := newFakeAPI()
	api.listErr = &uconnect.APIError{Kind: uconnect.APITransient}
	p := newTestPoller(api, &fakeAuth{}, nil, nil)

	require.Error(t, p.Start(context.Background()))
}

func TestScheduledPollPersistsStates(t *testing.T) {
	api := newFakeAPI(testVehicle("VIN1"))
	store := &fakeStore{}
	p := newTestPoller(api, &fakeAuth{}, store, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.states) >= 1
	}, time.Second, 10*time.Millisecond)
}
