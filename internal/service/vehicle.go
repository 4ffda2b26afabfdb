package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// SessionControl extends AuthManager with the operations only the facade
// uses. *uconnect.SessionManager satisfies it.
type SessionControl interface {
	AuthManager
	State() string
	Reauthenticate(ctx context.Context, creds uconnect.Credentials) (*uconnect.Session, error)
}

// API combines the client surfaces the facade wires together.
type API interface {
	VehicleAPI
	CommandAPI
}

// EventType tags messages pushed to subscribers.
type EventType string

const (
	EventState         EventType = "state"
	EventReauthNeeded  EventType = "reauth_required"
	EventCommandResult EventType = "command"
)

// Event is one push message for subscribers (the websocket hub, tests).
type Event struct {
	Type    EventType              `json:"type"`
	State   *models.VehicleState   `json:"state,omitempty"`
	Command *models.CommandRequest `json:"command,omitempty"`
}

// defaultFollowUpDelay gives a dispatched command time to reach the vehicle
// before the confirmation poll.
const defaultFollowUpDelay = 8 * time.Second

// VehicleService is the facade over polling, command dispatch and session
// control that the HTTP layer talks to.
type VehicleService struct {
	logger        *zap.Logger
	auth          SessionControl
	poller        *Poller
	dispatcher    *Dispatcher
	followUpDelay time.Duration

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewVehicleService wires the service layer. store may be nil to run without
// persistence.
func NewVehicleService(cfg PollerConfig, api API, auth SessionControl, store Store, m *metrics.Metrics, logger *zap.Logger) *VehicleService {
	delay := cfg.FollowUpDelay
	if delay == 0 {
		delay = defaultFollowUpDelay
	}
	s := &VehicleService{
		logger:        logger,
		auth:          auth,
		followUpDelay: delay,
		subscribers:   make(map[chan Event]struct{}),
		stopCh:        make(chan struct{}),
	}
	s.poller = NewPoller(cfg, api, auth, store, m, logger, s.publishState, s.publishReauth)
	s.dispatcher = NewDispatcher(api, auth, store, m, logger)
	return s
}

// Start logs in, syncs the catalog and begins polling.
func (s *VehicleService) Start(ctx context.Context) error {
	return s.poller.Start(ctx)
}

// Stop halts polling and closes all subscriber channels.
func (s *VehicleService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.poller.Stop()
	s.wg.Wait()

	s.mu.Lock()
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()
}

// Vehicles returns the account catalog.
func (s *VehicleService) Vehicles() []models.Vehicle {
	return s.poller.Vehicles()
}

// Vehicle looks up one catalog entry by VIN.
func (s *VehicleService) Vehicle(vin string) (*models.Vehicle, bool) {
	return s.poller.Vehicle(vin)
}

// GetState returns the latest known state for a VIN. When nothing is cached
// yet it fetches synchronously so first readers are not stuck with nothing.
func (s *VehicleService) GetState(ctx context.Context, vin string) (*models.VehicleState, error) {
	if _, ok := s.poller.Vehicle(vin); !ok {
		return nil, &uconnect.APIError{Kind: uconnect.APINotSupported}
	}
	if st, ok := s.poller.GetState(vin); ok {
		return st, nil
	}
	return s.poller.Refresh(ctx, vin, uconnect.DepthShallow)
}

// Refresh forces a fetch for one vehicle. Concurrent refreshes for the same
// VIN share a single upstream request.
func (s *VehicleService) Refresh(ctx context.Context, vin string, depth uconnect.Depth) (*models.VehicleState, error) {
	if _, ok := s.poller.Vehicle(vin); !ok {
		return nil, &uconnect.APIError{Kind: uconnect.APINotSupported}
	}
	return s.poller.Refresh(ctx, vin, depth)
}

// RunCommand dispatches a named command to a vehicle and schedules a
// best-effort follow-up poll so the command's effect shows up in state.
func (s *VehicleService) RunCommand(ctx context.Context, vin, name string) (*models.CommandRequest, error) {
	vehicle, ok := s.poller.Vehicle(vin)
	if !ok {
		return nil, &uconnect.CommandError{Kind: uconnect.CommandUnsupported, Command: name, VIN: vin}
	}
	cmd, ok := models.CommandByName(name)
	if !ok {
		return nil, &uconnect.CommandError{Kind: uconnect.CommandUnsupported, Command: name, VIN: vin}
	}

	req, err := s.dispatcher.Dispatch(ctx, vehicle, cmd)
	if err != nil {
		return nil, err
	}

	s.publish(Event{Type: EventCommandResult, Command: req})
	s.scheduleFollowUp(vin, cmd)
	return req, nil
}

// Reauthenticate performs a fresh login with new credentials and resumes
// polling if it had stopped.
func (s *VehicleService) Reauthenticate(ctx context.Context, creds uconnect.Credentials) error {
	if _, err := s.auth.Reauthenticate(ctx, creds); err != nil {
		return err
	}
	return s.poller.Resume(ctx)
}

// SessionState exposes the auth state machine's current state for the health
// endpoint.
func (s *VehicleService) SessionState() string {
	return s.auth.State()
}

// Subscribe registers a push channel. The channel is closed on Stop; slow
// consumers drop messages instead of blocking the poll path.
func (s *VehicleService) Subscribe() chan Event {
	ch := make(chan Event, 16)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *VehicleService) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *VehicleService) publishState(st *models.VehicleState) {
	s.publish(Event{Type: EventState, State: st})
}

func (s *VehicleService) publishReauth() {
	s.publish(Event{Type: EventReauthNeeded})
}

func (s *VehicleService) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// scheduleFollowUp polls the vehicle after a short delay. Commands execute
// asynchronously on the vehicle side; without this the effect would only
// surface on the next scheduled poll. Failures here are logged and dropped.
func (s *VehicleService) scheduleFollowUp(vin string, cmd models.Command) {
	depth := uconnect.DepthShallow
	switch cmd.Name {
	case models.CommandDeepRefresh.Name, models.CommandChargeNow.Name, models.CommandRefreshLocation.Name:
		depth = uconnect.DepthDeep
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.followUpDelay)
		defer timer.Stop()
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.poller.Refresh(ctx, vin, depth); err != nil {
			s.logger.Debug("Post-command refresh failed",
				zap.String("vin", vin),
				zap.String("command", cmd.Name),
				zap.Error(err))
		}
	}()
}
