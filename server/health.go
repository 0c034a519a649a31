package server

import (
	"context"
	"net/http"
	"time"

	"github.com/parleylabs/parley/pkg/httputil"
)

// Aggregate health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const probeTimeout = 5 * time.Second

// Probe checks one external dependency.
type Probe func(ctx context.Context) error

// Report is the health endpoint response body.
type Report struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Timestamp    time.Time         `json:"timestamp"`
}

type namedProbe struct {
	name  string
	probe Probe
}

// HealthChecker aggregates dependency probes into one status.
type HealthChecker struct {
	probes []namedProbe
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// Add registers a named dependency probe.
func (h *HealthChecker) Add(name string, probe Probe) {
	h.probes = append(h.probes, namedProbe{name: name, probe: probe})
}

// Check runs every probe and aggregates: all passing is healthy, all
// failing is unhealthy, anything in between is degraded. No registered
// probes reports healthy.
func (h *HealthChecker) Check(ctx context.Context) Report {
	report := Report{
		Status:       StatusHealthy,
		Dependencies: make(map[string]string, len(h.probes)),
		Timestamp:    time.Now(),
	}

	failures := 0
	for _, np := range h.probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := np.probe(probeCtx)
		cancel()

		if err != nil {
			failures++
			report.Dependencies[np.name] = err.Error()
			continue
		}
		report.Dependencies[np.name] = "ok"
	}

	switch {
	case failures == 0:
	case failures == len(h.probes):
		report.Status = StatusUnhealthy
	default:
		report.Status = StatusDegraded
	}

	return report
}

// HTTPProbe probes a dependency by issuing a GET and treating any response
// as liveness. Connection-level failures are the signal here, not status
// codes.
func HTTPProbe(url string) Probe {
	client := httputil.NewHTTPClient(probeTimeout)
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		return nil
	}
}
