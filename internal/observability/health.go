package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state. Readiness is the
// conjunction of named subsystem flags (db, nats, recovery) so a probe
// response names exactly what is still coming up.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu         sync.Mutex
	subsystems map[string]bool
}

// NewHealthChecker creates a health checker with no subsystems ready.
func NewHealthChecker(subsystems ...string) *HealthChecker {
	h := &HealthChecker{
		startTime:  time.Now(),
		subsystems: make(map[string]bool, len(subsystems)),
	}
	for _, name := range subsystems {
		h.subsystems[name] = false
	}
	return h
}

// SetSubsystemReady flags one subsystem and recomputes overall readiness.
func (h *HealthChecker) SetSubsystemReady(name string, ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subsystems[name] = ready
	all := true
	for _, ok := range h.subsystems {
		if !ok {
			all = false
			break
		}
	}
	h.ready.Store(all)
}

// SetReady forces the overall readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler returns HTTP 200 whenever the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once every subsystem is ready and
// 503 with the pending subsystem names otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
		return
	}

	h.mu.Lock()
	pending := make([]string, 0, len(h.subsystems))
	for name, ok := range h.subsystems {
		if !ok {
			pending = append(pending, name)
		}
	}
	h.mu.Unlock()

	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "not_ready",
		"pending": pending,
	})
}
