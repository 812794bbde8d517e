package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
)

// liveness responds with 200 OK if the HTTP server is running.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness checks all registered dependencies and answers 200 only if every checker passes.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	statusMap, healthy := s.runChecks(ctx)

	if healthy {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, map[string]any{"status": statusMap})
}

// runChecks executes all checkers in parallel.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	statusMap := make(map[string]string, len(s.checkers))
	healthy := true

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator retries probes.
				s.logger.Warn("health probe failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				statusMap[c.Name()] = fmt.Sprintf("down: %v", err)
				healthy = false
				return
			}
			statusMap[c.Name()] = "up"
		}(checker)
	}

	wg.Wait()
	return statusMap, healthy
}
