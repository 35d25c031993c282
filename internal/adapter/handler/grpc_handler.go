package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StorefrontService is the service name reported through the gRPC health
// protocol alongside the empty (server-wide) name.
const StorefrontService = "storefront.v1.Storefront"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor pings the backing stores and publishes the result to the
// gRPC health service and the HTTP /health endpoint.
type HealthMonitor struct {
	server   *health.Server
	checks   map[string]Pinger
	interval time.Duration
	timeout  time.Duration

	mu      sync.RWMutex
	results map[string]error
	checked bool
}

func NewHealthMonitor(checks map[string]Pinger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &HealthMonitor{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		timeout:  2 * time.Second,
		results:  make(map[string]error, len(checks)),
	}
	m.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return m
}

func (m *HealthMonitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Run checks once immediately, then every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.CheckOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce pings every dependency and reports whether all of them answered.
func (m *HealthMonitor) CheckOnce(ctx context.Context) bool {
	results := make(map[string]error, len(m.checks))
	for name, p := range m.checks {
		pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("health: %s ping failed: %v", name, err)
		}
		results[name] = err
	}

	m.mu.Lock()
	m.results = results
	m.checked = true
	m.mu.Unlock()

	healthy := allNil(results)
	if healthy {
		m.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		m.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Report returns the last check result per dependency ("ok" or the error).
func (m *HealthMonitor) Report() (healthy bool, deps map[string]string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deps = make(map[string]string, len(m.results))
	for name, err := range m.results {
		if err != nil {
			deps[name] = err.Error()
		} else {
			deps[name] = "ok"
		}
	}
	return m.checked && allNil(m.results), deps
}

// Shutdown flips every service to NOT_SERVING so clients drain before the
// gRPC server stops.
func (m *HealthMonitor) Shutdown() {
	m.server.Shutdown()
}

func (m *HealthMonitor) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(StorefrontService, status)
}

func allNil(results map[string]error) bool {
	for _, err := range results {
		if err != nil {
			return false
		}
	}
	return true
}
