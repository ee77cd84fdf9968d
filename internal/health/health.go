// Package health runs readiness probes against the server's upstreams
// (database, replay store, chain RPC) and serves the aggregate result.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentos/agentos/internal/envelope"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 3 * time.Second

var upGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "agentos_dependency_up",
	Help: "1 when the last readiness probe of a dependency succeeded.",
}, []string{"name"})

func init() {
	prometheus.MustRegister(upGauge)
}

// Status is the result of one probe.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Pinger probes a dependency and returns nil when it is reachable.
type Pinger func(ctx context.Context) error

// Registry holds named probes and runs them on demand.
type Registry struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
}

type probe struct {
	name string
	ping Pinger
}

// NewRegistry creates an empty registry. A non-positive timeout uses DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{timeout: timeout}
}

// Register adds a named probe.
func (r *Registry) Register(name string, ping Pinger) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, ping: ping})
	r.mu.Unlock()
}

// CheckAll runs every probe concurrently, each under its own timeout.
// Statuses keep registration order.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	statuses = make([]Status, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = r.run(ctx, p)
		}()
	}
	wg.Wait()

	healthy = true
	for _, s := range statuses {
		if !s.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

func (r *Registry) run(ctx context.Context, p probe) Status {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	s := Status{Name: p.name, Healthy: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		s.Detail = err.Error()
		upGauge.WithLabelValues(p.name).Set(0)
	} else {
		upGauge.WithLabelValues(p.name).Set(1)
	}
	return s
}

// Handler serves the readiness report: 200 when every probe passes, 503 otherwise.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		healthy, statuses := r.CheckAll(c.Request.Context())
		if !healthy {
			envelope.FailDetails(c, http.StatusServiceUnavailable, envelope.CodeInternal,
				"dependency unavailable", gin.H{"checks": statuses})
			return
		}
		envelope.OK(c, gin.H{"checks": statuses})
	}
}
