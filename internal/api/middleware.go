package api

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerKey    contextKey = "caller"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one access log line per request.
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Authenticate runs further down the chain and fills this in.
			caller := new(auth.Identity)
			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", GetRequestID(r.Context())),
			}
			if caller.Role != "" {
				fields = append(fields, zap.String("user_id", caller.UserID.String()), zap.String("role", string(caller.Role)))
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request", fields...)
			case wrapped.statusCode >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

// MetricsMiddleware records request counts and latency by chi route pattern,
// so path parameters do not explode label cardinality.
func MetricsMiddleware(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Authenticate requires a valid bearer token and stores the caller's
// Identity on the request context.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			id, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				details := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					details = "token has expired"
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", details)
				return
			}

			if caller, ok := r.Context().Value(callerKey).(*auth.Identity); ok {
				*caller = id
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers holding none of roles. Admin satisfies secretary.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !identity(r).HasAny(roles...) {
				writeError(w, http.StatusForbidden, appointment.ReasonWrongRole, "role is not allowed to call this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterStore keeps one token bucket per client key. Buckets idle for longer
// than idle are dropped; by then they have refilled, so a fresh one is the same.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	*rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(limit rate.Limit, burst int) *limiterStore {
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		idle:     max(refill, 5*time.Minute),
		now:      time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{Limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.Limiter
}

// sweep runs with mu held.
func (s *limiterStore) sweep(now time.Time) {
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) >= s.idle {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

// RateLimitMiddleware throttles each client, keyed by user when
// authenticated and by remote address otherwise. A zero rate disables it.
func RateLimitMiddleware(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.RequestsPerSecond <= 0 {
			return next
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.RequestsPerSecond))
		}
		store := newLimiterStore(rate.Limit(cfg.RequestsPerSecond), burst)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := store.get(clientKey(r))
			if !l.Allow() {
				retry := int(math.Ceil(1 / cfg.RequestsPerSecond))
				w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
