package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// VehicleAPI is the slice of the cloud client the coordinator needs.
type VehicleAPI interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	FetchState(ctx context.Context, vin string, depth uconnect.Depth) (*models.VehicleState, error)
}

// AuthManager is the slice of the session manager the service layer needs.
type AuthManager interface {
	ReauthRequired() bool
	Invalidate(ctx context.Context) error
	CommandAuthToken(ctx context.Context) (*uconnect.CommandAuthToken, error)
}

// Store persists the catalog, the latest state snapshot per VIN and the
// command log. It may be nil, in which case nothing is persisted.
type Store interface {
	UpsertVehicle(ctx context.Context, v *models.Vehicle) error
	SaveState(ctx context.Context, s *models.VehicleState) error
	SaveCommand(ctx context.Context, r *models.CommandRequest) error
}

// PollerConfig tunes the coordinator.
type PollerConfig struct {
	// Interval between scheduled full-account polls.
	Interval time.Duration
	// FetchTimeout bounds each per-vehicle fetch so one slow vehicle never
	// delays the others indefinitely.
	FetchTimeout time.Duration
	// FollowUpDelay is how long a dispatched command gets to reach the
	// vehicle before the confirmation poll. Zero means the default.
	FollowUpDelay time.Duration
}

// Poller owns the periodic refresh schedule for one account. It guarantees
// at most one in-flight fetch per vehicle (concurrent requests for the same
// VIN share the in-flight result), retains the last successful state across
// transient failures, and stops the schedule when the session becomes
// terminally unauthorized.
type Poller struct {
	cfg     PollerConfig
	logger  *zap.Logger
	api     VehicleAPI
	auth    AuthManager
	store   Store
	metrics *metrics.Metrics

	group singleflight.Group

	mu       sync.RWMutex
	vehicles []models.Vehicle
	states   map[string]*models.VehicleState
	lastErr  map[string]error
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	onState  func(*models.VehicleState)
	onReauth func()
}

// NewPoller creates a polling coordinator. onState fires after every
// successful fetch; onReauth fires once when polling stops because the
// session requires external reauthentication.
func NewPoller(cfg PollerConfig, api VehicleAPI, auth AuthManager, store Store, m *metrics.Metrics, logger *zap.Logger, onState func(*models.VehicleState), onReauth func()) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &Poller{
		cfg:      cfg,
		logger:   logger,
		api:      api,
		auth:     auth,
		store:    store,
		metrics:  m,
		states:   make(map[string]*models.VehicleState),
		lastErr:  make(map[string]error),
		onState:  onState,
		onReauth: onReauth,
	}
}

// Start syncs the vehicle catalog and launches the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Info("Poller already running, skipping start")
		return nil
	}
	p.stopCh = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	if err := p.syncVehicles(ctx); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return err
	}

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.Info("Poller started", zap.Duration("interval", p.cfg.Interval))
	return nil
}

// Stop halts the schedule. Not-yet-started polls are skipped; in-flight
// fetches complete and their results are still applied to the cache.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Poller stopped")
}

// Vehicles returns the catalog in upstream order.
func (p *Poller) Vehicles() []models.Vehicle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Vehicle, len(p.vehicles))
	copy(out, p.vehicles)
	return out
}

// Vehicle looks up one catalog entry by VIN.
func (p *Poller) Vehicle(vin string) (*models.Vehicle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.vehicles {
		if p.vehicles[i].VIN == vin {
			v := p.vehicles[i]
			return &v, true
		}
	}
	return nil, false
}

// GetState returns the latest cached state for a VIN without blocking.
func (p *Poller) GetState(vin string) (*models.VehicleState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.states[vin]
	return st, ok
}

// LastError returns the most recent fetch error for a VIN, if any.
func (p *Poller) LastError(vin string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr[vin]
}

// Refresh performs an explicit fetch for one vehicle. Concurrent calls for
// the same VIN are coalesced into a single upstream fetch whose result all
// callers share. On failure the previously cached state is returned together
// with the error: stale-but-present beats empty.
func (p *Poller) Refresh(ctx context.Context, vin string, depth uconnect.Depth) (*models.VehicleState, error) {
	result, err, _ := p.group.Do(vin, func() (interface{}, error) {
		return p.fetch(ctx, vin, depth)
	})
	if err != nil {
		cached, _ := p.GetState(vin)
		return cached, err
	}
	return result.(*models.VehicleState), nil
}

func (p *Poller) fetch(ctx context.Context, vin string, depth uconnect.Depth) (*models.VehicleState, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	st, err := p.api.FetchState(fetchCtx, vin, depth)
	p.metrics.ObservePoll(vin, string(depth), time.Since(start), err)

	if err != nil {
		p.mu.Lock()
		p.lastErr[vin] = err
		p.mu.Unlock()

		if uconnect.IsUnauthorized(err) || uconnect.IsReauthRequired(err) {
			p.handleUnauthorized(ctx, vin, err)
		} else {
			p.logger.Warn("Vehicle fetch failed, keeping cached state",
				zap.String("vin", vin),
				zap.String("depth", string(depth)),
				zap.Error(err))
		}
		return nil, err
	}

	p.mu.Lock()
	p.states[vin] = st
	delete(p.lastErr, vin)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.SaveState(ctx, st); err != nil {
			p.logger.Warn("Failed to persist vehicle state", zap.String("vin", vin), zap.Error(err))
		}
	}
	if p.onState != nil {
		p.onState(st)
	}
	return st, nil
}

func (p *Poller) handleUnauthorized(ctx context.Context, vin string, cause error) {
	p.logger.Warn("Unauthorized response during poll", zap.String("vin", vin), zap.Error(cause))

	err := p.auth.Invalidate(ctx)
	p.metrics.ObserveRefresh(err)
	if err == nil {
		return
	}

	if uconnect.IsReauthRequired(err) || p.auth.ReauthRequired() {
		p.metrics.SetReauthRequired(true)
		p.stopForReauth()
	}
}

// stopForReauth halts the schedule without blocking on the poll loop
// goroutine (it may be the caller).
func (p *Poller) stopForReauth() {
	p.mu.Lock()
	wasRunning := p.running
	if p.running {
		p.running = false
		close(p.stopCh)
	}
	p.mu.Unlock()

	if wasRunning {
		p.logger.Warn("Polling stopped, reauthentication required")
		if p.onReauth != nil {
			p.onReauth()
		}
	}
}

// Resume restarts the schedule after a successful external
// reauthentication.
func (p *Poller) Resume(ctx context.Context) error {
	p.metrics.SetReauthRequired(false)
	p.mu.Lock()
	for vin := range p.lastErr {
		delete(p.lastErr, vin)
	}
	p.mu.Unlock()
	return p.Start(ctx)
}

func (p *Poller) syncVehicles(ctx context.Context) error {
	vehicles, err := p.api.ListVehicles(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.vehicles = vehicles
	p.mu.Unlock()
	p.metrics.SetVehicles(len(vehicles))

	for i := range vehicles {
		v := &vehicles[i]
		if p.store != nil {
			if err := p.store.UpsertVehicle(ctx, v); err != nil {
				p.logger.Warn("Failed to persist vehicle", zap.String("vin", v.VIN), zap.Error(err))
			}
		}
		p.logger.Info("Discovered vehicle",
			zap.String("vin", v.VIN),
			zap.String("make", v.Make),
			zap.String("nickname", v.Nickname),
			zap.Int("commands", len(v.Capabilities)))
	}
	return nil
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	// First poll right away so collaborators have data at startup.
	p.pollAll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// pollAll fetches every vehicle concurrently. Vehicles are independent
// remote resources: one timing out never delays the others, and per-VIN
// coalescing protects against overlap with explicit refreshes.
func (p *Poller) pollAll(ctx context.Context) {
	if p.auth.ReauthRequired() {
		p.stopForReauth()
		return
	}

	var wg sync.WaitGroup
	for _, v := range p.Vehicles() {
		vin := v.VIN
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Refresh(ctx, vin, uconnect.DepthShallow); err != nil {
				p.logger.Debug("Scheduled poll failed", zap.String("vin", vin), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}
