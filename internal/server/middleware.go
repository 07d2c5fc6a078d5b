package server

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// contentSecurityPolicy lets pages load the widget library from a CDN and
// reach the Binder service and the kernels it hands out.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://unpkg.com https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https:; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data: https:; " +
	"connect-src 'self' https: wss:; " +
	"frame-ancestors 'none'"

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
			next.ServeHTTP(w, r)
		})
	}
}

const (
	// evictionLogInterval is the minimum time between eviction log messages.
	evictionLogInterval = 30 * time.Second
	limiterIdleTTL      = 10 * time.Minute
	limiterSweep        = 5 * time.Minute
	defaultMaxIPs       = 10000
)

type ipLimiter struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet is an LRU of per-IP token buckets.
type limiterSet struct {
	rps    float64
	burst  int
	maxIPs int

	mu           sync.Mutex
	items        map[string]*list.Element
	order        *list.List // front = most recent
	lastEvictLog time.Time
	evictCount   int
}

func newLimiterSet(rps float64, burst, maxIPs int) *limiterSet {
	if maxIPs <= 0 {
		maxIPs = defaultMaxIPs
	}
	return &limiterSet{
		rps:    rps,
		burst:  burst,
		maxIPs: maxIPs,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}
}

func (l *limiterSet) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elem, ok := l.items[ip]; ok {
		l.order.MoveToFront(elem)
		lim := elem.Value.(*ipLimiter)
		lim.lastSeen = now
		return lim.limiter.Allow()
	}

	if l.order.Len() >= l.maxIPs {
		l.evictOldest(now)
	}
	lim := &ipLimiter{
		ip:       ip,
		limiter:  rate.NewLimiter(rate.Limit(l.rps), l.burst),
		lastSeen: now,
	}
	l.items[ip] = l.order.PushFront(lim)
	return lim.limiter.Allow()
}

func (l *limiterSet) evictOldest(now time.Time) {
	back := l.order.Back()
	if back == nil {
		return
	}
	l.order.Remove(back)
	delete(l.items, back.Value.(*ipLimiter).ip)

	l.evictCount++
	if now.Sub(l.lastEvictLog) >= evictionLogInterval {
		log.Printf("[RateLimit] Evicted %d least-recent IP(s) (at capacity: %d IPs)", l.evictCount, l.maxIPs)
		l.lastEvictLog = now
		l.evictCount = 0
	}
}

// sweep drops limiters idle for longer than limiterIdleTTL. LRU order tracks
// access recency, not lastSeen, so the whole list is scanned.
func (l *limiterSet) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for e := l.order.Back(); e != nil; {
		prev := e.Prev()
		lim := e.Value.(*ipLimiter)
		if now.Sub(lim.lastSeen) > limiterIdleTTL {
			l.order.Remove(e)
			delete(l.items, lim.ip)
		}
		e = prev
	}
}

func (l *limiterSet) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// RateLimitMiddleware limits requests per client IP with a token bucket.
// maxIPs bounds the number of tracked clients; the least recently seen client
// is evicted when full.
//
// Idle buckets are swept by a goroutine that runs until ctx is cancelled. The
// returned channel is closed when it exits.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int) (func(http.Handler) http.Handler, <-chan struct{}) {
	set := newLimiterSet(rps, burst, maxIPs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				set.sweep(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.allow(getClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	return middleware, done
}

// getClientIP extracts the client IP from the request. Forwarding headers are
// only trusted when the peer is a loopback or private address.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
