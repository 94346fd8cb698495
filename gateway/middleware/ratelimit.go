package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a per-client token bucket configuration.
type Limit struct {
	PerMinute float64
	Burst     int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter throttles callers by client address. Gateway retries are
// bursty, so the limit is generous by default; this exists to keep a
// misbehaving client from turning signature verification into a CPU sink.
type ClientLimiter struct {
	limit Limit

	mu       sync.Mutex
	visitors map[string]*visitor
	nowFn    func() time.Time
}

const visitorTTL = 10 * time.Minute

func NewClientLimiter(limit Limit) *ClientLimiter {
	if limit.PerMinute <= 0 {
		limit.PerMinute = 120
	}
	if limit.Burst <= 0 {
		limit.Burst = 30
	}
	return &ClientLimiter{
		limit:    limit,
		visitors: make(map[string]*visitor),
		nowFn:    time.Now,
	}
}

// Middleware rejects over-limit requests with 429 before any body is read.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientID(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ClientLimiter) allow(id string) bool {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.visitors[id]
	if !ok {
		l.evictStaleLocked(now)
		entry = &visitor{limiter: rate.NewLimiter(rate.Limit(l.limit.PerMinute/60.0), l.limit.Burst)}
		l.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *ClientLimiter) evictStaleLocked(now time.Time) {
	for id, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(l.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
