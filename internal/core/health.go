package core

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the total time spent probing subsystems.
const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes concurrently. 200 when every probe
// passes, 503 when any fails or the deadline is exceeded.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var mu sync.Mutex
	components := make(map[string]componentStatus, len(s.probes))
	healthy := true

	var wg sync.WaitGroup
	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			status := componentStatus{Status: "healthy"}
			if err := p.Check(ctx); err != nil {
				status = componentStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			components[p.Name()] = status
			if status.Status != "healthy" {
				healthy = false
			}
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	resp := healthResponse{Status: "healthy", Components: components}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	JSON(w, r, code, resp)
}
