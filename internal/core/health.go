package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds the whole probe run. Anything slower than this is
// unhealthy by definition.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a checkable dependency (the database, the notice queue).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all probes concurrently under a shared deadline.
// 200 when every probe passes, 503 otherwise. Mounted at GET /health,
// unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var mu sync.Mutex
	components := make(map[string]componentStatus, len(s.HealthProbes))

	// Plain group, not WithContext: one failing probe must not cancel the
	// others, or the response would misreport healthy dependencies.
	var g errgroup.Group
	for _, probe := range s.HealthProbes {
		g.Go(func() (err error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					err = fmt.Errorf("probe panicked: %v", rvr)
				}
				status := componentStatus{Status: "healthy"}
				if err != nil {
					status = componentStatus{Status: "unhealthy", Message: err.Error()}
				}
				mu.Lock()
				components[probe.Name()] = status
				mu.Unlock()
			}()
			return probe.Check(ctx)
		})
	}

	err := g.Wait()

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if err != nil {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
