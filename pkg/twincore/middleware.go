package twincore

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
)

// RequestLogEntry captures details of an incoming request for admin inspection.
type RequestLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers,omitempty"`
	StatusCode int               `json:"status_code"`
	Duration   time.Duration     `json:"duration_ms"`
}

// RequestLog is a thread-safe ring buffer of recent requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []RequestLogEntry
	maxSize int
}

// NewRequestLog creates a request log with the given max size.
func NewRequestLog(maxSize int) *RequestLog {
	return &RequestLog{
		entries: make([]RequestLogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, evicting the oldest if at capacity.
func (rl *RequestLog) Add(entry RequestLogEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= rl.maxSize {
		rl.entries = rl.entries[1:]
	}
	rl.entries = append(rl.entries, entry)
}

// Entries returns a copy of all log entries.
func (rl *RequestLog) Entries() []RequestLogEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]RequestLogEntry, len(rl.entries))
	copy(out, rl.entries)
	return out
}

// Clear removes all entries.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries = rl.entries[:0]
}

// FaultConfig is an injected failure for one endpoint path.
type FaultConfig struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body,omitempty"`
	Delay      time.Duration `json:"delay_ms,omitempty"`
	Rate       float64       `json:"rate"` // probability of triggering, 0.0-1.0
}

// FaultRegistry holds injected faults keyed by request path.
type FaultRegistry struct {
	mu     sync.RWMutex
	faults map[string]FaultConfig
}

// NewFaultRegistry creates an empty registry.
func NewFaultRegistry() *FaultRegistry {
	return &FaultRegistry{faults: make(map[string]FaultConfig)}
}

// Set injects a fault for path. A zero rate means always.
func (fr *FaultRegistry) Set(path string, fault FaultConfig) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fault.Rate == 0 {
		fault.Rate = 1.0
	}
	fr.faults[path] = fault
}

// Remove deletes the fault for path and reports whether one existed.
func (fr *FaultRegistry) Remove(path string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, existed := fr.faults[path]
	delete(fr.faults, path)
	return existed
}

// Check returns the fault to apply to path, or nil.
func (fr *FaultRegistry) Check(path string) *FaultConfig {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	if f, ok := fr.faults[path]; ok {
		if f.Rate >= 1.0 || rand.Float64() < f.Rate {
			return &f
		}
	}
	return nil
}

// All returns a copy of every registered fault.
func (fr *FaultRegistry) All() map[string]FaultConfig {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	out := make(map[string]FaultConfig, len(fr.faults))
	for k, v := range fr.faults {
		out[k] = v
	}
	return out
}

// Reset clears all faults.
func (fr *FaultRegistry) Reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]FaultConfig)
}

// Middleware provides the twin's common middleware.
type Middleware struct {
	twin   *Twin
	logger *slog.Logger
	cors   *cors.Cors
	ReqLog *RequestLog
	Faults *FaultRegistry
}

// NewMiddleware creates the middleware for t.
func NewMiddleware(t *Twin, logger *slog.Logger) *Middleware {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           3600,
	}
	if len(t.Config.Origins) > 0 {
		opts.AllowedOrigins = t.Config.Origins
	} else {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Middleware{
		twin:   t,
		logger: logger,
		cors:   cors.New(opts),
		ReqLog: NewRequestLog(1000),
		Faults: NewFaultRegistry(),
	}
}

// CORS answers preflight requests so a browser build of the client can talk
// to the twin directly.
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return m.cors.Handler(next)
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// RequestLog records every request into the ring buffer.
func (m *Middleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		verbose := m.twin.verbose()
		entry := RequestLogEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: rec.statusCode,
			Duration:   time.Since(start),
		}
		if verbose {
			entry.Headers = make(map[string]string)
			for k := range r.Header {
				if k == "Authorization" {
					entry.Headers[k] = "Bearer [redacted]"
					continue
				}
				entry.Headers[k] = r.Header.Get(k)
			}
		}
		m.ReqLog.Add(entry)

		if verbose {
			m.logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration", time.Since(start),
			)
		}
	})
}

// LatencyInjection delays every request by 80-120% of the configured latency.
func (m *Middleware) LatencyInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l := m.twin.latency(); l > 0 {
			jitter := 0.8 + rand.Float64()*0.4
			time.Sleep(time.Duration(float64(l) * jitter))
		}
		next.ServeHTTP(w, r)
	})
}

// RandomFailure returns 500s at the configured fail rate.
func (m *Middleware) RandomFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rate := m.twin.failRate(); rate > 0 && rand.Float64() < rate {
			Message(w, http.StatusInternalServerError, "simulated random failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FaultInjection applies registered faults. Mount it inside the API route
// group so admin endpoints are never affected.
func (m *Middleware) FaultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fault := m.Faults.Check(r.URL.Path); fault != nil {
			if fault.Delay > 0 {
				time.Sleep(fault.Delay)
			}
			if fault.StatusCode > 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(fault.StatusCode)
				if fault.Body != "" {
					fmt.Fprint(w, fault.Body)
				} else {
					fmt.Fprintf(w, `{"message":"injected fault","code":%d}`, fault.StatusCode)
				}
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
