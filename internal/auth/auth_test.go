package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/apiclient/apitest"
	"github.com/sat-prep/web/internal/models"
)

// generateToken issues a token shaped like the remote API's.
func generateToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("remote-signing-key"))
	require.NoError(t, err)
	return signed
}

func requestWithCookies(path string, cookies map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range cookies {
		r.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	return r
}

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no cookies", func(t *testing.T) {
		s := LoadSession(requestWithCookies("/", nil))
		assert.Equal(t, StateEmpty, s.State())
		assert.ErrorIs(t, s.Validate(now), ErrNoSession)
		assert.False(t, s.Ready())
	})

	t.Run("jwt subject and expiry", func(t *testing.T) {
		tok := generateToken(t, jwt.MapClaims{"sub": "user-42", "exp": now.Add(time.Hour).Unix()})
		s := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: tok}))
		assert.Equal(t, StateLoaded, s.State())
		require.NoError(t, s.Validate(now))
		assert.Equal(t, StateReady, s.State())
		assert.Equal(t, "user-42", s.Subject)
		assert.Equal(t, now.Add(time.Hour).Unix(), s.ExpiresAt.Unix())
	})

	t.Run("user_id claim from access token", func(t *testing.T) {
		tok := generateToken(t, jwt.MapClaims{"user_id": 42})
		s := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: "opaque", CookieAccessToken: tok}))
		require.NoError(t, s.Validate(now))
		assert.Equal(t, "42", s.Subject)
	})

	t.Run("expired", func(t *testing.T) {
		tok := generateToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Minute).Unix()})
		s := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: tok}))
		assert.ErrorIs(t, s.Validate(now), ErrSessionExpired)
		assert.False(t, s.Ready())
	})

	t.Run("opaque token hashes to a stable owner", func(t *testing.T) {
		a := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: "opaque-1"}))
		b := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: "opaque-1"}))
		require.NoError(t, a.Validate(now))
		require.NoError(t, b.Validate(now))
		assert.True(t, strings.HasPrefix(a.Owner, "tok-"))
		assert.Equal(t, a.Owner, b.Owner)
		assert.Empty(t, a.Subject)
	})
}

func TestOwnerIgnoresClaims(t *testing.T) {
	now := time.Now()
	genuine := generateToken(t, jwt.MapClaims{"sub": "victim-42", "exp": now.Add(time.Hour).Unix()})

	// Same claims, signed with a key the remote never issued.
	forgedTok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "victim-42", "exp": now.Add(time.Hour).Unix()})
	forged, err := forgedTok.SignedString([]byte("attacker-guess"))
	require.NoError(t, err)

	a := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: genuine}))
	b := LoadSession(requestWithCookies("/", map[string]string{CookieSessionData: forged}))
	require.NoError(t, a.Validate(now))
	require.NoError(t, b.Validate(now))

	assert.Equal(t, a.Subject, b.Subject, "both claim the same user")
	assert.NotEqual(t, a.Owner, b.Owner)
	assert.NotContains(t, a.Owner, "victim-42")
}

func TestGate(t *testing.T) {
	gate := NewGate(false, "/healthz", "/static/")
	var seen *Session
	h := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		path       string
		cookies    map[string]string
		wantStatus int
		wantLoc    string
		wantSess   bool
	}{
		{"public root", "/", nil, http.StatusNoContent, "", false},
		{"public login", "/login", nil, http.StatusNoContent, "", false},
		{"authenticated login passes", "/login", map[string]string{CookieSessionData: "tok"}, http.StatusNoContent, "", true},
		{"health", "/healthz", nil, http.StatusNoContent, "", false},
		{"static prefix", "/static/app.css", nil, http.StatusNoContent, "", false},
		{"protected page redirects", "/dashboard", nil, http.StatusFound, "/login?redirectTo=%2Fdashboard", false},
		{"protected api 401", "/api/session", nil, http.StatusUnauthorized, "", false},
		{"protected with session", "/practice", map[string]string{CookieSessionData: "tok"}, http.StatusNoContent, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestWithCookies(tt.path, tt.cookies))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantSess, seen != nil)
		})
	}
}

func TestGateClearsExpiredCookies(t *testing.T) {
	gate := NewGate(true)
	tok := generateToken(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})
	rec := httptest.NewRecorder()
	gate.Middleware(http.NotFoundHandler()).ServeHTTP(rec, requestWithCookies("/profile", map[string]string{CookieSessionData: tok}))

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, "", c.Value)
		assert.True(t, c.MaxAge < 0)
	}
}

func TestLoginSetsCookies(t *testing.T) {
	remote := apitest.New()
	defer remote.Close()
	h := NewHandler(apiclient.NewClient(remote.URL, remote.Client()), 3600, true)

	form := url.Values{"email": {" Student@Example.com "}, "password": {"secret"}, "redirectTo": {"/practice"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Login(rec, r)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/practice", rec.Header().Get("Location"))

	byName := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		byName[c.Name] = c
	}
	require.Contains(t, byName, CookieSessionData)
	require.Contains(t, byName, CookieAccessToken)
	for _, c := range byName {
		assert.Equal(t, 3600, c.MaxAge)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.True(t, c.Secure)
		assert.Equal(t, "/", c.Path)
	}
	assert.Equal(t, "session-token", byName[CookieSessionData].Value)
	assert.Equal(t, "access-token", byName[CookieAccessToken].Value)
}

func TestLoginRejected(t *testing.T) {
	remote := apitest.New()
	defer remote.Close()
	h := NewHandler(apiclient.NewClient(remote.URL, remote.Client()), 0, false)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"student@example.com","password":"nope"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.Login(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
	assert.Empty(t, rec.Result().Cookies())
}

type downClient struct{}

func (downClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	return nil, apiclient.ErrServiceUnavailable
}

func TestLoginRemoteDown(t *testing.T) {
	h := NewHandler(downClient{}, 0, false)
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.Login(rec, r)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUnauthorizedClearsCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	Unauthorized(rec, httptest.NewRequest(http.MethodGet, "/profile", nil), false)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Len(t, rec.Result().Cookies(), 2)

	rec = httptest.NewRecorder()
	Unauthorized(rec, httptest.NewRequest(http.MethodPost, "/api/session/advance", nil), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/dashboard"},
		{"/profile", "/profile"},
		{"//evil.example", "/dashboard"},
		{"https://evil.example", "/dashboard"},
		{"/login", "/dashboard"},
	}
	for _, tt := range tests {
		if got := safeRedirect(tt.in); got != tt.want {
			t.Errorf("safeRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
