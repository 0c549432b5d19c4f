package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "stele", Audience: "stele-rpc"}, nil)
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token := signToken(t, jwt.MapClaims{
		"sub":   caller.Hex(),
		"iss":   "stele",
		"aud":   "stele-rpc",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "challenge:admin other",
	})

	var seen common.Address
	var admin bool
	handler := newAuth().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFromContext(r.Context())
		admin = HasScopes(r.Context(), ScopeAdmin)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, caller, seen)
	require.True(t, admin)
}

func TestAuthenticatorAnonymousAndRejected(t *testing.T) {
	called := 0
	handler := newAuth().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		_, ok := CallerFromContext(r.Context())
		require.False(t, ok)
		require.False(t, HasScopes(r.Context(), ScopeAdmin))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, 1, called)

	cases := map[string]jwt.MapClaims{
		"expired":      {"sub": "0x00000000000000000000000000000000000000a1", "iss": "stele", "aud": "stele-rpc", "exp": time.Now().Add(-time.Hour).Unix()},
		"wrong issuer": {"sub": "0x00000000000000000000000000000000000000a1", "iss": "other", "aud": "stele-rpc", "exp": time.Now().Add(time.Hour).Unix()},
		"bad subject":  {"sub": "alice", "iss": "stele", "aud": "stele-rpc", "exp": time.Now().Add(time.Hour).Unix()},
		"no expiry":    {"sub": "0x00000000000000000000000000000000000000a1", "iss": "stele", "aud": "stele-rpc"},
	}
	for name, claims := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
	require.Equal(t, 1, called)
}

func TestAuthenticatorWithoutSecretRejectsTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	require.False(t, auth.Enabled())
	_, _, err := auth.Verify("anything")
	require.ErrorIs(t, err, errSecretMissing)
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	limiter.SetClock(func() time.Time { return now })

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = ip + ":4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("10.0.0.1"))
	require.Equal(t, http.StatusOK, do("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	require.Equal(t, http.StatusOK, do("10.0.0.2"))

	now = now.Add(time.Second)
	require.Equal(t, http.StatusOK, do("10.0.0.1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})
	require.Nil(t, limiter)
	require.True(t, limiter.Allow("anyone"))
}

func TestClientIDIgnoresHeadersFromUntrustedPeers(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "192.0.2.1", limiter.ClientID(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	require.Equal(t, "192.0.2.1", limiter.ClientID(req))
}

func TestClientIDHonoursTrustedProxy(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1, TrustedProxies: []string{"10.0.0.1"}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", limiter.ClientID(req))
	req.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", limiter.ClientID(req))
}

func TestRateLimitSpoofedForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	limiter.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.1.1.1:9000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i < 2 {
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}
