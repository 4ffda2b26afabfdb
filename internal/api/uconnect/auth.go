package uconnect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hass-uconnect/hass-uconnect/internal/state"
)

// expiryMargin is how close to expiry a token is still considered valid.
const expiryMargin = 5 * time.Minute

// Credentials are owned exclusively by the session manager and never logged
// in cleartext. The PIN gates command authorization only, not telemetry.
type Credentials struct {
	Username string
	Password string
	PIN      string
}

// Session is the renewable telemetry session for one account. Exactly one
// live session exists per configured account.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
}

// NearExpiry reports whether the session should be refreshed before use.
func (s *Session) NearExpiry() bool {
	return time.Now().After(s.ExpiresAt.Add(-expiryMargin))
}

// CommandAuthToken is the short-lived PIN-derived token required for remote
// commands. Its lifetime is independent of the telemetry session.
type CommandAuthToken struct {
	Token     string
	ExpiresAt time.Time
}

func (t *CommandAuthToken) NearExpiry() bool {
	return time.Now().After(t.ExpiresAt.Add(-time.Minute))
}

// SessionManager owns the credential and token lifecycle: login, silent
// refresh and PIN-based command authorization. Refreshes are serialized so
// that concurrent callers discovering an expired token trigger exactly one
// network refresh.
type SessionManager struct {
	cfg       EndpointConfig
	transport *Transport
	logger    *zap.Logger
	machine   *state.Machine

	mu       sync.RWMutex
	creds    Credentials
	session  *Session
	pinToken *CommandAuthToken

	refreshGroup singleflight.Group
}

// NewSessionManager creates a session manager. onStateChange receives auth
// state transitions, including the move to reauth_required that collaborators
// must surface to the user.
func NewSessionManager(cfg EndpointConfig, creds Credentials, transport *Transport, logger *zap.Logger, onStateChange func(from, to string)) *SessionManager {
	return &SessionManager{
		cfg:       cfg,
		creds:     creds,
		transport: transport,
		logger:    logger,
		machine:   state.NewMachine(onStateChange),
	}
}

// State returns the current auth session state.
func (m *SessionManager) State() string { return m.machine.Current() }

// ReauthRequired reports whether the session is terminally invalid until the
// host re-prompts for credentials.
func (m *SessionManager) ReauthRequired() bool { return m.machine.ReauthRequired() }

// Session returns the current session without validating it.
func (m *SessionManager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Login performs the brand's login handshake: account login against the
// brand gateway, JWT retrieval, then the token exchange that yields the
// API session.
func (m *SessionManager) Login(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	session, err := m.doLogin(ctx, creds)
	if err != nil {
		if m.machine.Can(state.EventLoginFailed) {
			_ = m.machine.Trigger(state.EventLoginFailed)
		}
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.pinToken = nil
	m.mu.Unlock()

	if err := m.machine.Trigger(state.EventLoginOK); err != nil {
		m.logger.Warn("Unexpected auth state transition", zap.Error(err))
	}
	m.logger.Info("Logged in",
		zap.String("endpoint", m.cfg.String()),
		zap.String("account_id", session.AccountID))
	return session, nil
}

// Reauthenticate replaces the stored credentials and attempts a fresh login.
// This is the only way out of the reauth_required state.
func (m *SessionManager) Reauthenticate(ctx context.Context, creds Credentials) (*Session, error) {
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return m.Login(ctx)
}

func (m *SessionManager) doLogin(ctx context.Context, creds Credentials) (*Session, error) {
	form := url.Values{}
	form.Set("loginID", creds.Username)
	form.Set("password", creds.Password)
	form.Set("APIKey", m.cfg.LoginAPIKey)
	form.Set("include", "profile,data")

	resp, err := m.transport.Do(ctx, "POST", m.cfg.LoginURL+"/accounts.login",
		map[string]string{"content-type": "application/x-www-form-urlencoded"},
		[]byte(form.Encode()))
	if err != nil {
		return nil, mapLoginError(err)
	}

	var login rawAccountLogin
	if err := json.Unmarshal(resp.Body, &login); err != nil {
		return nil, &AuthError{Reason: AuthUnknown, Err: fmt.Errorf("decode login response: %w", err)}
	}
	if login.ErrorCode != 0 || login.UID == "" {
		return nil, &AuthError{Reason: AuthInvalidCredentials, Err: fmt.Errorf("gateway error code %d", login.ErrorCode)}
	}

	jwtForm := url.Values{}
	jwtForm.Set("login_token", login.SessionInfo.LoginToken)
	jwtForm.Set("APIKey", m.cfg.LoginAPIKey)
	jwtForm.Set("fields", "profile.firstName,profile.lastName,profile.email,country")

	resp, err = m.transport.Do(ctx, "POST", m.cfg.LoginURL+"/accounts.getJWT",
		map[string]string{"content-type": "application/x-www-form-urlencoded"},
		[]byte(jwtForm.Encode()))
	if err != nil {
		return nil, mapLoginError(err)
	}

	var jwt rawJWT
	if err := json.Unmarshal(resp.Body, &jwt); err != nil {
		return nil, &AuthError{Reason: AuthUnknown, Err: fmt.Errorf("decode jwt response: %w", err)}
	}
	if jwt.IDToken == "" {
		return nil, &AuthError{Reason: AuthInvalidCredentials, Err: fmt.Errorf("gateway error code %d", jwt.ErrorCode)}
	}

	body, _ := json.Marshal(map[string]string{"gigya_token": jwt.IDToken})
	resp, err = m.transport.Do(ctx, "POST", m.cfg.TokenURL, nil, body)
	if err != nil {
		return nil, mapLoginError(err)
	}

	session, err := decodeSession(resp.Body, login.UID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// EnsureValidSession returns a valid session, refreshing silently when the
// current one is near expiry. Concurrent calls while the token is expired
// share a single refresh; a failed refresh falls back to at most one login
// with the stored credentials before surfacing reauth_required.
func (m *SessionManager) EnsureValidSession(ctx context.Context) (*Session, error) {
	if m.machine.ReauthRequired() {
		return nil, &AuthError{Reason: AuthReauthRequired}
	}

	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session == nil {
		return m.Login(ctx)
	}
	if !session.NearExpiry() {
		return session, nil
	}

	result, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

func (m *SessionManager) refresh(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	session := m.session
	creds := m.creds
	m.mu.RUnlock()

	// Another caller may have finished a refresh while this one waited.
	if session != nil && !session.NearExpiry() {
		return session, nil
	}

	if m.machine.Can(state.EventRefreshStart) {
		_ = m.machine.Trigger(state.EventRefreshStart)
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": session.RefreshToken,
	})
	resp, err := m.transport.Do(ctx, "POST", m.cfg.TokenURL, nil, body)
	if err != nil {
		if IsUnauthorized(err) {
			// Refresh token revoked or expired: one silent re-login, then
			// give up and require external reauthentication.
			m.logger.Info("Refresh token rejected, attempting re-login")
			fresh, loginErr := m.doLogin(ctx, creds)
			if loginErr != nil {
				_ = m.machine.Trigger(state.EventRefreshFailed)
				m.logger.Warn("Session refresh failed, reauthentication required")
				return nil, &AuthError{Reason: AuthReauthRequired, Err: loginErr}
			}
			m.storeSession(fresh)
			_ = m.machine.Trigger(state.EventRefreshOK)
			return fresh, nil
		}
		// Transient network failure: state is unchanged, the caller sees a
		// transient error.
		if m.machine.Can(state.EventRefreshOK) {
			_ = m.machine.Trigger(state.EventRefreshOK)
		}
		return nil, err
	}

	fresh, err := decodeSession(resp.Body, session.AccountID)
	if err != nil {
		_ = m.machine.Trigger(state.EventRefreshFailed)
		return nil, &AuthError{Reason: AuthReauthRequired, Err: err}
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = session.RefreshToken
	}
	m.storeSession(fresh)
	_ = m.machine.Trigger(state.EventRefreshOK)
	m.logger.Debug("Session refreshed", zap.Time("expires_at", fresh.ExpiresAt))
	return fresh, nil
}

// Invalidate reacts to a 401/403 seen by a collaborator mid-poll: it forces
// a serialized refresh attempt and, if that fails for auth reasons, leaves
// the manager in reauth_required.
func (m *SessionManager) Invalidate(ctx context.Context) error {
	if m.machine.ReauthRequired() {
		return &AuthError{Reason: AuthReauthRequired}
	}

	m.mu.Lock()
	if m.session != nil {
		// Force the next refresh to actually hit the network.
		m.session.ExpiresAt = time.Now().Add(-time.Hour)
	}
	m.mu.Unlock()

	_, err := m.EnsureValidSession(ctx)
	return err
}

// CommandAuthToken returns a valid PIN authorization token, fetching one if
// absent or near expiry. It never prompts: a missing PIN fails immediately
// with pin_required.
func (m *SessionManager) CommandAuthToken(ctx context.Context) (*CommandAuthToken, error) {
	m.mu.RLock()
	creds := m.creds
	cached := m.pinToken
	m.mu.RUnlock()

	if creds.PIN == "" {
		return nil, &AuthError{Reason: AuthPINRequired}
	}
	if cached != nil && !cached.NearExpiry() {
		return cached, nil
	}

	session, err := m.EnsureValidSession(ctx)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]string{
		"pin": base64.StdEncoding.EncodeToString([]byte(creds.PIN)),
	})
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/ignite/pin/authenticate", m.cfg.AuthURL, session.AccountID)
	resp, err := m.transport.Do(ctx, "POST", endpoint, map[string]string{
		"x-api-key":     m.cfg.AuthAPIKey,
		"Authorization": "Bearer " + session.AccessToken,
	}, body)
	if err != nil {
		if IsUnauthorized(err) {
			return nil, &AuthError{Reason: AuthInvalidPIN, Err: err}
		}
		return nil, err
	}

	var pin rawPinAuth
	if err := json.Unmarshal(resp.Body, &pin); err != nil {
		return nil, &AuthError{Reason: AuthUnknown, Err: fmt.Errorf("decode pin response: %w", err)}
	}
	if pin.Token == "" {
		return nil, &AuthError{Reason: AuthInvalidPIN}
	}

	token := &CommandAuthToken{Token: pin.Token}
	switch {
	case pin.Expiry > 0:
		token.ExpiresAt = time.UnixMilli(pin.Expiry)
	case pin.ExpiresIn > 0:
		token.ExpiresAt = time.Now().Add(time.Duration(pin.ExpiresIn) * time.Second)
	default:
		token.ExpiresAt = time.Now().Add(5 * time.Minute)
	}

	m.mu.Lock()
	m.pinToken = token
	m.mu.Unlock()

	m.logger.Debug("PIN authorization token acquired", zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

func (m *SessionManager) storeSession(s *Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

func decodeSession(body []byte, accountID string) (*Session, error) {
	var tok rawTokenExchange
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &AuthError{Reason: AuthUnknown, Err: fmt.Errorf("decode token response: %w", err)}
	}

	access := tok.AccessToken
	if access == "" {
		access = tok.Token
	}
	if access == "" {
		return nil, &AuthError{Reason: AuthUnknown, Err: fmt.Errorf("token exchange returned no token")}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	if tok.IdentityID != "" {
		accountID = tok.IdentityID
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		AccountID:    accountID,
	}, nil
}

func mapLoginError(err error) error {
	if IsUnauthorized(err) {
		return &AuthError{Reason: AuthInvalidCredentials, Err: err}
	}
	var te *TransportError
	if errors.As(err, &te) && te.Kind != TransportHTTPStatus {
		return &AuthError{Reason: AuthNetwork, Err: err}
	}
	return &AuthError{Reason: AuthUnknown, Err: err}
}
