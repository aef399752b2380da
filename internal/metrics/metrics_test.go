package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistry(t *testing.T) {
	reg := NewWithRegistry(prometheus.NewRegistry())
	if reg == nil {
		t.Fatal("expected non-nil Registry")
	}
	reg.RecordHTTPRequest("GET", "/runs", 200, 0.01)
}

func TestRunOutcomeAndSolveDurationAppearInHandler(t *testing.T) {
	reg := NewWithRegistry(prometheus.NewRegistry())

	reg.RecordRunOutcome("OPTIMAL")
	reg.RecordRunOutcome("INFEASIBLE")
	reg.ObserveSolveDuration("OPTIMAL", 1.25)
	reg.ObserveIISDuration(0.4)
	reg.SetQueueDepth("solve", 3)
	reg.SetOldestQueuedAge("solve", 12.5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"shiftsolver_runs_total",
		"shiftsolver_solve_duration_seconds",
		"shiftsolver_iis_duration_seconds",
		"shiftsolver_queue_depth",
		"shiftsolver_oldest_queued_age_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
