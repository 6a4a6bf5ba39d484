package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/ticketdesk/accesslog/accesslogfake"
	"github.com/ticketdesk/ticketdesk/auth"
	"github.com/ticketdesk/ticketdesk/identity"
	"github.com/ticketdesk/ticketdesk/identity/identityfake"
	"github.com/ticketdesk/ticketdesk/internal/config"
	"github.com/ticketdesk/ticketdesk/logindefense"
	"github.com/ticketdesk/ticketdesk/server"
	"github.com/ticketdesk/ticketdesk/token"
)

const (
	testSecret   = "test-secret-1234"
	testUsername = "john.doe"
	testPassword = "Password123"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	server *server.Server
	store  *identityfake.FakeStore
	clock  *clock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	clk := newClock()
	store := identityfake.NewFakeStore()
	logs := accesslogfake.NewFakeStore()
	defense := logindefense.New(logindefense.WithNowFunc(clk.Now))
	tokens := token.New(store, token.NewHMACSigner(testSecret), token.WithNowFunc(clk.Now))

	service, err := auth.NewService(
		auth.NewVerifier(store, defense),
		tokens,
		store,
		logs,
		auth.WithNowFunc(clk.Now),
	)
	require.NoError(t, err)

	srv := server.New(config.New(), service, tokens, logs, zerolog.Nop())
	return &fixture{server: srv, store: store, clock: clk}
}

func (f *fixture) seedIdentity(t *testing.T, username, password string, role identity.Role) {
	t.Helper()
	hash, err := identity.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, f.store.Upsert(&identity.Identity{
		Username:      username,
		PasswordHash:  hash,
		Role:          role,
		ProfilePicURL: "https://cdn.example.com/pic.png",
	}))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, req)
	return recorder
}

func loginRequest(username, password string) *http.Request {
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	return body
}

func refreshCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "Refresh" {
			return cookie
		}
	}
	t.Fatal("no Refresh cookie set")
	return nil
}

func (f *fixture) login(t *testing.T, username, password string) (accessToken string, cookie *http.Cookie) {
	t.Helper()
	recorder := f.do(loginRequest(username, password))
	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	return body["accessToken"].(string), refreshCookie(t, recorder)
}

func TestLoginSuccess(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)

	recorder := f.do(loginRequest(testUsername, testPassword))
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	require.Equal(t, testUsername, body["username"])
	require.Equal(t, "USER", body["role"])
	require.NotEmpty(t, body["memberId"])
	require.NotEmpty(t, body["accessToken"])
	require.Equal(t, "https://cdn.example.com/pic.png", body["profilePic"])

	cookie := refreshCookie(t, recorder)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, "/auth", cookie.Path)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	require.Len(t, cookie.Value, 64)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)

	// Wrong password and unknown username collapse to the same code.
	recorder := f.do(loginRequest(testUsername, "wrong-password"))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeInvalidCredentials, decodeBody(t, recorder)["error"])

	recorder = f.do(loginRequest("nobody", "whatever"))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeInvalidCredentials, decodeBody(t, recorder)["error"])
}

func TestLoginMalformedRequest(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader("username=x&password=y"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := f.do(req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, server.CodeMalformedRequest, decodeBody(t, recorder)["error"])

	req = httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader(`{"username":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	recorder = f.do(req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestLoginBlockedWithRetryHint(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)

	for i := 0; i < logindefense.DefaultThreshold; i++ {
		recorder := f.do(loginRequest(testUsername, "wrong-password"))
		require.Equal(t, http.StatusUnauthorized, recorder.Code)
	}

	// Correct password, still blocked.
	recorder := f.do(loginRequest(testUsername, testPassword))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	body := decodeBody(t, recorder)
	require.Equal(t, server.CodeAccountBlocked, body["error"])
	require.InDelta(t, 600, body["retryAfterSeconds"].(float64), 2)
}

func TestRefreshFlow(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)
	_, cookie := f.login(t, testUsername, testPassword)

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil)
	req.AddCookie(cookie)
	recorder := f.do(req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, decodeBody(t, recorder)["accessToken"])

	rotated := refreshCookie(t, recorder)
	require.NotEqual(t, cookie.Value, rotated.Value)

	// Replaying the consumed cookie fails.
	req = httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil)
	req.AddCookie(cookie)
	recorder = f.do(req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeInvalidRefreshToken, decodeBody(t, recorder)["error"])

	// The rotated cookie still works.
	req = httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil)
	req.AddCookie(rotated)
	recorder = f.do(req)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := setup(t)
	recorder := f.do(httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, nil))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeMissingRefreshToken, decodeBody(t, recorder)["error"])
}

func TestProtectedRouteRejections(t *testing.T) {
	f := setup(t)

	recorder := f.do(httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeMissingAccessToken, decodeBody(t, recorder)["error"])

	req := httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	recorder = f.do(req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeTokenInvalid, decodeBody(t, recorder)["error"])
}

func TestExpiredTokenRejected(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)
	accessToken, _ := f.login(t, testUsername, testPassword)

	f.clock.Advance(31 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	recorder := f.do(req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeTokenExpired, decodeBody(t, recorder)["error"])
}

func TestLogoutThenReplayIsRevoked(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleUser)
	accessToken, _ := f.login(t, testUsername, testPassword)

	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogout, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	recorder := f.do(req)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Less(t, refreshCookie(t, recorder).MaxAge, 0)

	// Reusing the exact token after logout fails with the revocation code.
	req = httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	recorder = f.do(req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.CodeTokenRevoked, decodeBody(t, recorder)["error"])
}

func TestMeReturnsSecurityContext(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, testUsername, testPassword, identity.RoleManager)
	accessToken, _ := f.login(t, testUsername, testPassword)

	req := httptest.NewRequest(http.MethodGet, server.RouteAuthMe, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	recorder := f.do(req)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	require.Equal(t, testUsername, body["username"])
	require.Equal(t, "MANAGER", body["role"])
}

func TestRoleGating(t *testing.T) {
	f := setup(t)
	f.seedIdentity(t, "plain.user", testPassword, identity.RoleUser)
	f.seedIdentity(t, "the.manager", testPassword, identity.RoleManager)
	f.seedIdentity(t, "the.admin", testPassword, identity.RoleAdmin)

	cases := []struct {
		username string
		want     int
	}{
		{"plain.user", http.StatusForbidden},
		{"the.manager", http.StatusOK},
		{"the.admin", http.StatusOK},
	}

	for _, tc := range cases {
		accessToken, _ := f.login(t, tc.username, testPassword)
		req := httptest.NewRequest(http.MethodGet, server.RouteAdminAccessLogs, nil)
		req.Header.Set("Authorization", "Bearer "+accessToken)
		recorder := f.do(req)
		require.Equal(t, tc.want, recorder.Code, "username %s", tc.username)

		if tc.want == http.StatusForbidden {
			require.Equal(t, server.CodeInsufficientRole, decodeBody(t, recorder)["error"])
		}
	}
}
