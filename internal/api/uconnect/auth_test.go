package uconnect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway mimics the brand login gateway, the token exchange and the PIN
// authorization endpoint.
type fakeGateway struct {
	t *testing.T

	mu            sync.Mutex
	loginCalls    int32
	refreshCalls  int32
	pinCalls      int32
	rejectLogin   bool
	rejectRefresh bool
	rejectPin     bool
	refreshDelay  time.Duration

	server *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{t: t}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/accounts.login"):
		g.mu.Lock()
		reject := g.rejectLogin
		g.mu.Unlock()
		if reject {
			json.NewEncoder(w).Encode(map[string]interface{}{"errorCode": 403042})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errorCode": 0,
			"UID":       "uid-1",
			"sessionInfo": map[string]string{
				"login_token": "login-token",
			},
		})

	case strings.HasSuffix(r.URL.Path, "/accounts.getJWT"):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errorCode": 0,
			"id_token":  "jwt-token",
		})

	case r.URL.Path == "/token":
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "refresh_token") {
			atomic.AddInt32(&g.refreshCalls, 1)
			g.mu.Lock()
			reject := g.rejectRefresh
			delay := g.refreshDelay
			g.mu.Unlock()
			if delay > 0 {
				time.Sleep(delay)
			}
			if reject {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  fmt.Sprintf("refreshed-%d", atomic.LoadInt32(&g.refreshCalls)),
				"refresh_token": "next-refresh",
				"expires_in":    3600,
			})
			return
		}
		atomic.AddInt32(&g.loginCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_in":    3600,
		})

	case strings.Contains(r.URL.Path, "/ignite/pin/authenticate"):
		atomic.AddInt32(&g.pinCalls, 1)
		g.mu.Lock()
		reject := g.rejectPin
		g.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			PIN string `json:"pin"`
		}
		json.Unmarshal(body, &req)
		decoded, err := base64.StdEncoding.DecodeString(req.PIN)
		require.NoError(g.t, err)
		assert.Equal(g.t, "1234", string(decoded))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":     "pin-token",
			"expiresIn": 300,
		})

	default:
		g.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *fakeGateway) config() EndpointConfig {
	return EndpointConfig{
		Name:        "Fiat (EU)",
		Brand:       BrandFiat,
		Region:      RegionEU,
		LoginURL:    g.server.URL + "/gigya",
		LoginAPIKey: "login-key",
		TokenURL:    g.server.URL + "/token",
		APIURL:      g.server.URL,
		APIKey:      "api-key",
		AuthURL:     g.server.URL,
		AuthAPIKey:  "auth-key",
		Locale:      "de-de",
	}
}

func newTestManager(t *testing.T, g *fakeGateway, pin string) *SessionManager {
	t.Helper()
	cfg := g.config()
	transport := NewTransport(cfg, TransportOptions{
		Timeout:        5 * time.Second,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, zap.NewNop())
	return NewSessionManager(cfg, Credentials{
		Username: "user@example.com",
		Password: "secret",
		PIN:      pin,
	}, transport, zap.NewNop(), nil)
}

func TestLoginSuccess(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	session, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", session.AccessToken)
	assert.Equal(t, "uid-1", session.AccountID)
	assert.Equal(t, "authenticated", m.State())
	assert.False(t, session.NearExpiry())
}

func TestLoginInvalidCredentials(t *testing.T) {
	g := newFakeGateway(t)
	g.rejectLogin = true
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.Error(t, err)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AuthInvalidCredentials, ae.Reason)
	assert.False(t, m.ReauthRequired())
}

func TestEnsureValidSessionLogsInWhenEmpty(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	session, err := m.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", session.AccessToken)
}

func TestEnsureValidSessionReusesFreshSession(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	first, err := m.EnsureValidSession(context.Background())
	require.NoError(t, err)
	second, err := m.EnsureValidSession(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&g.loginCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&g.refreshCalls))
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	g := newFakeGateway(t)
	g.refreshDelay = 50 * time.Millisecond
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	// Push the session to near expiry so every caller wants a refresh.
	m.mu.Lock()
	m.session.ExpiresAt = time.Now()
	m.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := m.EnsureValidSession(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, session)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&g.refreshCalls))
	assert.Equal(t, "authenticated", m.State())
}

func TestRefreshFallsBackToLoginOnRevokedToken(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	g.mu.Lock()
	g.rejectRefresh = true
	g.mu.Unlock()

	m.mu.Lock()
	m.session.ExpiresAt = time.Now()
	m.mu.Unlock()

	session, err := m.EnsureValidSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", session.AccessToken)
	assert.EqualValues(t, 2, atomic.LoadInt32(&g.loginCalls))
	assert.False(t, m.ReauthRequired())
}

func TestRefreshAndLoginFailureRequiresReauth(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	g.mu.Lock()
	g.rejectRefresh = true
	g.rejectLogin = true
	g.mu.Unlock()

	m.mu.Lock()
	m.session.ExpiresAt = time.Now()
	m.mu.Unlock()

	_, err = m.EnsureValidSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsReauthRequired(err))
	assert.True(t, m.ReauthRequired())

	// Terminal until external reauthentication: no further network calls.
	before := atomic.LoadInt32(&g.refreshCalls)
	_, err = m.EnsureValidSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsReauthRequired(err))
	assert.EqualValues(t, before, atomic.LoadInt32(&g.refreshCalls))
}

func TestReauthenticateRecoversTerminalState(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	g.mu.Lock()
	g.rejectRefresh = true
	g.rejectLogin = true
	g.mu.Unlock()

	m.mu.Lock()
	m.session.ExpiresAt = time.Now()
	m.mu.Unlock()

	_, err = m.EnsureValidSession(context.Background())
	require.Error(t, err)
	require.True(t, m.ReauthRequired())

	g.mu.Lock()
	g.rejectLogin = false
	g.rejectRefresh = false
	g.mu.Unlock()

	session, err := m.Reauthenticate(context.Background(), Credentials{
		Username: "user@example.com",
		Password: "new-secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, session)
	assert.False(t, m.ReauthRequired())
	assert.Equal(t, "authenticated", m.State())
}

func TestCommandAuthTokenRequiresPIN(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	_, err := m.CommandAuthToken(context.Background())
	require.Error(t, err)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AuthPINRequired, ae.Reason)
	// No network traffic at all for a missing PIN.
	assert.EqualValues(t, 0, atomic.LoadInt32(&g.pinCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&g.loginCalls))
}

func TestCommandAuthTokenCachedUntilExpiry(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "1234")

	first, err := m.CommandAuthToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pin-token", first.Token)

	second, err := m.CommandAuthToken(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&g.pinCalls))
}

func TestCommandAuthTokenInvalidPIN(t *testing.T) {
	g := newFakeGateway(t)
	g.rejectPin = true
	m := newTestManager(t, g, "1234")

	_, err := m.CommandAuthToken(context.Background())
	require.Error(t, err)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AuthInvalidPIN, ae.Reason)
}

func TestLoginClearsCachedPinToken(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "1234")

	_, err := m.CommandAuthToken(context.Background())
	require.NoError(t, err)

	_, err = m.Login(context.Background())
	require.NoError(t, err)

	_, err = m.CommandAuthToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&g.pinCalls))
}

func TestInvalidateForcesRefresh(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestManager(t, g, "")

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&g.refreshCalls))
	assert.Equal(t, "authenticated", m.State())
}
