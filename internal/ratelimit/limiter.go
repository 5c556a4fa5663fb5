// Package ratelimit applies per-client token buckets to expensive endpoints.
package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/events"
	"github.com/raksha-rane/stratify/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Resource names
const (
	ResourceFetch = "fetch"
	ResourceRun   = "run"
)

// Rule is a token bucket refilled at PerMinute tokens per minute holding at most Burst tokens
type Rule struct {
	PerMinute int `json:"calls_per_minute"`
	Burst     int `json:"burst"`
}

func (r Rule) refillPerSecond() float64 {
	return float64(r.PerMinute) / 60
}

// Decision is the outcome of one Check
type Decision struct {
	Allowed    bool  `json:"allowed"`
	Limit      int   `json:"limit"`
	Remaining  int   `json:"tokens_remaining"`
	RetryAfter int   `json:"retry_after"` // seconds
	Reset      int64 `json:"reset_time"`  // unix seconds when the bucket is full again
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks buckets per resource and client
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	buckets map[string]map[string]*bucket
	hits    map[string]int64
	now     func() time.Time

	events  *events.Manager
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a limiter for the given resource rules. events and metrics may be nil.
func New(rules map[string]Rule, eventManager *events.Manager, m *metrics.Metrics, log zerolog.Logger) *Limiter {
	l := &Limiter{
		rules:   make(map[string]Rule, len(rules)),
		buckets: make(map[string]map[string]*bucket, len(rules)),
		hits:    make(map[string]int64, len(rules)),
		now:     time.Now,
		events:  eventManager,
		metrics: m,
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
	for resource, rule := range rules {
		l.rules[resource] = rule
		l.buckets[resource] = make(map[string]*bucket)
	}
	return l
}

// Check consumes one token for client on resource. Unknown resources are always allowed.
func (l *Limiter) Check(resource, client string) Decision {
	rule, ok := l.rules[resource]
	if !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketLocked(resource, client, rule)
	b.lastSeen = now

	decision := Decision{Limit: rule.PerMinute}
	if b.limiter.AllowN(now, 1) {
		decision.Allowed = true
	} else {
		l.hits[resource]++
		missing := 1 - b.limiter.TokensAt(now)
		decision.RetryAfter = int(math.Ceil(missing/rule.refillPerSecond() - 1e-9))
	}

	tokens := math.Max(0, b.limiter.TokensAt(now))
	decision.Remaining = int(tokens)
	untilFull := (float64(rule.Burst) - tokens) / rule.refillPerSecond()
	decision.Reset = now.Add(time.Duration(untilFull * float64(time.Second))).Unix()

	return decision
}

func (l *Limiter) bucketLocked(resource, client string, rule Rule) *bucket {
	b, ok := l.buckets[resource][client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rule.refillPerSecond()), rule.Burst)}
		l.buckets[resource][client] = b
	}
	return b
}

// Middleware rejects requests over the resource's limit with 429 and rate limit headers
func (l *Limiter) Middleware(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientIP(r)
			decision := l.Check(resource, client)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset, 10))

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			l.log.Warn().
				Str("resource", resource).
				Str("client", client).
				Int("retry_after", decision.RetryAfter).
				Msg("Rate limit exceeded")
			l.metrics.RecordRateLimitHit(resource)
			l.events.EmitTyped("ratelimit", &events.RateLimitHitData{
				Resource:   resource,
				Client:     client,
				RetryAfter: decision.RetryAfter,
			})

			rule := l.rules[resource]
			body := apperrors.Body(apperrors.RateLimit("Rate limit exceeded for "+resource).
				WithDetail("retry_after", decision.RetryAfter).
				WithDetail("limit", rule))

			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			if err := json.NewEncoder(w).Encode(body); err != nil {
				l.log.Error().Err(err).Msg("Failed to encode rate limit response")
			}
		})
	}
}

// ResourceStatus describes one resource for the status endpoint
type ResourceStatus struct {
	Rule          Rule  `json:"limit"`
	ActiveClients int   `json:"active_clients"`
	RejectedTotal int64 `json:"rejected_total"`
	// Client is the caller's own bucket state, without consuming a token
	Client *Decision `json:"client,omitempty"`
}

// Status reports every resource's rule, client count and rejections,
// plus the given client's bucket when client is non-empty.
func (l *Limiter) Status(client string) map[string]ResourceStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[string]ResourceStatus, len(l.rules))
	for resource, rule := range l.rules {
		status := ResourceStatus{
			Rule:          rule,
			ActiveClients: len(l.buckets[resource]),
			RejectedTotal: l.hits[resource],
		}
		if client != "" {
			tokens := float64(rule.Burst)
			if b, ok := l.buckets[resource][client]; ok {
				tokens = math.Max(0, b.limiter.TokensAt(now))
			}
			untilFull := (float64(rule.Burst) - tokens) / rule.refillPerSecond()
			status.Client = &Decision{
				Allowed:   tokens >= 1,
				Limit:     rule.PerMinute,
				Remaining: int(tokens),
				Reset:     now.Add(time.Duration(untilFull * float64(time.Second))).Unix(),
			}
		}
		out[resource] = status
	}
	return out
}

// Resources lists configured resource names
func (l *Limiter) Resources() []string {
	names := make([]string, 0, len(l.rules))
	for name := range l.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prune drops buckets idle for longer than maxIdle and returns how many were removed
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for _, clients := range l.buckets {
		for id, b := range clients {
			if b.lastSeen.Before(cutoff) {
				delete(clients, id)
				removed++
			}
		}
	}
	return removed
}

// ClientIP returns the request's remote IP without port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
