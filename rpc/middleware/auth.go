package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin grants access to administrative challenge operations.
const ScopeAdmin = "challenge:admin"

type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const (
	contextKeyCaller contextKey = "stele.caller"
	contextKeyScopes contextKey = "stele.scopes"
)

var (
	errSecretMissing = errors.New("auth secret not configured")
	errBadSubject    = errors.New("subject is not an address")
)

// Authenticator resolves bearer tokens into a caller address. Requests
// without a token pass through anonymously; requests carrying an invalid
// token are rejected.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	reject func(w http.ResponseWriter, status int, message string)
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		reject: func(w http.ResponseWriter, status int, message string) {
			http.Error(w, message, status)
		},
	}
}

// Enabled reports whether a verification secret is configured.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// SetRejectFunc overrides how rejected requests are answered.
func (a *Authenticator) SetRejectFunc(fn func(w http.ResponseWriter, status int, message string)) {
	if a != nil && fn != nil {
		a.reject = fn
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller, scopes, err := a.Verify(tokenString)
		if err != nil {
			a.logger.Debug("auth: token rejected", slog.Any("error", err))
			a.reject(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := WithCaller(r.Context(), caller, scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses tokenString and returns the caller named by its subject
// together with the granted scopes.
func (a *Authenticator) Verify(tokenString string) (common.Address, []string, error) {
	if !a.Enabled() {
		return common.Address{}, nil, errSecretMissing
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, nil, err
	}
	if !token.Valid {
		return common.Address{}, nil, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return common.Address{}, nil, err
	}
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, nil, errBadSubject
	}
	caller := common.HexToAddress(subject)
	if caller == (common.Address{}) {
		return common.Address{}, nil, errBadSubject
	}
	return caller, extractScopes(claims, a.cfg.ScopeClaim), nil
}

// WithCaller attaches an authenticated caller to ctx.
func WithCaller(ctx context.Context, caller common.Address, scopes []string) context.Context {
	ctx = context.WithValue(ctx, contextKeyCaller, caller)
	return context.WithValue(ctx, contextKeyScopes, scopes)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	if !ok || caller == (common.Address{}) {
		return common.Address{}, false
	}
	return caller, true
}

// HasScopes reports whether the authenticated caller holds every scope.
func HasScopes(ctx context.Context, required ...string) bool {
	scopes, _ := ctx.Value(contextKeyScopes).([]string)
	return hasScopes(scopes, required)
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
