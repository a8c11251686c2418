package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fmuoria/cold-outreach-agent/internal/metrics"
	"github.com/fmuoria/cold-outreach-agent/internal/session"
)

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests and records their latency
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		// ServeMux fills in the matched pattern; unmatched paths share a label
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(r.Method, pattern, strconv.Itoa(rec.status), duration)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// withSession loads the caller's session into the request context
func (s *Server) withSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Load(r)
		if err != nil {
			s.logger.Error("Failed to load session", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "Failed to load session")
			return
		}
		next(w, r.WithContext(session.NewContext(r.Context(), sess)))
	})
}

// currentSession returns the session attached by withSession
func currentSession(r *http.Request) *session.Session {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return &session.Session{Data: &session.Data{}}
	}
	return sess
}

// gated requires a login when the require-login policy is on
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	if !s.opts.RequireLogin {
		return next
	}
	return s.authenticated(next)
}

// authenticated rejects requests without a logged-in session.
// Page loads are redirected to the login form; everything else gets 401.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if currentSession(r).Data.Authenticated() {
			next(w, r)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/form" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		s.respondError(w, http.StatusUnauthorized, "Login required")
	}
}

// rateLimited applies the per-IP limiter to next
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			s.respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client address
type ipRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateClient
	limit   rate.Limit
	burst   int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// newIPRateLimiter returns nil when rps is not positive
func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	l := &ipRateLimiter{
		clients: make(map[string]*rateClient),
		limit:   rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweep(5*time.Minute, 10*time.Minute)
	return l
}

// sweep drops idle clients every interval until close is called
func (l *ipRateLimiter) sweep(interval, idle time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(idle)
		case <-l.stop:
			return
		}
	}
}

// close stops the sweep goroutine and waits for it to exit
func (l *ipRateLimiter) close() {
	if l == nil || l.stop == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	cl, exists := l.clients[ip]
	if !exists {
		cl = &rateClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	l.mu.Unlock()

	return cl.limiter.Allow()
}

func (l *ipRateLimiter) cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if time.Since(c.lastSeen) > idle {
			delete(l.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
