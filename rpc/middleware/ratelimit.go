package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 5 * time.Minute

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
	// TrustedProxies lists peer IPs whose X-Real-IP and X-Forwarded-For
	// headers name the real client.
	TrustedProxies    []string
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	trusted  map[string]struct{}
	clockNow func() time.Time
	onReject func(w http.ResponseWriter, r *http.Request)
}

// NewRateLimiter returns nil when limit disables throttling. A nil limiter
// passes every request through.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerMinute <= 0 {
		return nil
	}
	trusted := make(map[string]struct{}, len(limit.TrustedProxies))
	for _, proxy := range limit.TrustedProxies {
		if ip := net.ParseIP(strings.TrimSpace(proxy)); ip != nil {
			trusted[ip.String()] = struct{}{}
		}
	}
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*rateEntry),
		trusted:  trusted,
		clockNow: time.Now,
		onReject: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
	}
}

// SetRejectFunc overrides how throttled requests are answered.
func (r *RateLimiter) SetRejectFunc(fn func(w http.ResponseWriter, r *http.Request)) {
	if r != nil && fn != nil {
		r.onReject = fn
	}
}

// SetClock overrides the limiter clock.
func (r *RateLimiter) SetClock(now func() time.Time) {
	if r != nil && now != nil {
		r.clockNow = now
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(r.ClientID(req)) {
			r.onReject(w, req)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Allow consumes one token for id.
func (r *RateLimiter) Allow(id string) bool {
	if r == nil {
		return true
	}
	now := r.clockNow()
	return r.obtainLimiter(id, now).AllowN(now, 1)
}

func (r *RateLimiter) obtainLimiter(id string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(r.visitors, key)
		}
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := r.limit.RequestsPerMinute / 60.0
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// ClientID identifies the remote client. Proxy headers are honoured only
// when the peer is a trusted proxy.
func (r *RateLimiter) ClientID(req *http.Request) string {
	peer := remoteHost(req)
	if r == nil {
		return peer
	}
	if _, ok := r.trusted[peer]; !ok {
		return peer
	}
	if ip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return peer
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
