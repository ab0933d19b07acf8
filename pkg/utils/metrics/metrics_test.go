package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/utils/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.CommandReceived("open")
	m.Attempt("open")
	m.Outcome("open", "success", time.Second)
	m.StaleSessions("T1", 1)
	m.MirrorReleased()
}

func TestMetricsHandler(t *testing.T) {
	m := metrics.New()
	m.Attempt("open")
	m.Attempt("open")
	m.Outcome("open", "success", 1500*time.Millisecond)

	families, err := m.Registry().Gather()
	gt.NoError(t, err).Required()
	gt.Number(t, len(families)).GreaterOrEqual(2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Bool(t, strings.Contains(w.Body.String(), `punchcard_transition_attempts_total{action="open"} 2`)).True()
	gt.Bool(t, strings.Contains(w.Body.String(), `punchcard_command_outcomes_total{action="open",outcome="success"} 1`)).True()
}
