package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordTurn("ok", 3)
	m.RecordTurn("ok", 1)
	m.RecordTurn("cap_reached", 10)
	m.RecordModelCall("error")
	m.RecordToolCall("search_statutes", "ok")
	m.RecordToolCall("search_statutes", "ok")
	m.RecordToolCall("add_ruling_to_topic_knowledge", "already_exists")
	m.RecordFallbackIngestion("ingested")
	m.RecordTimeline(2, false)
	m.RecordTimeline(0, true)

	if got := testutil.ToFloat64(m.turns.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("search_statutes", "ok")); got != 2 {
		t.Errorf("search_statutes ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.timelineEvents); got != 2 {
		t.Errorf("timeline events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.timelineFailures); got != 1 {
		t.Errorf("timeline failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.turnIterations); got != 1 {
		t.Errorf("iteration histogram series = %d, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTurn("ok", 1)
	m.RecordModelCall("ok")
	m.RecordToolCall("x", "ok")
	m.RecordFallbackIngestion("ok")
	m.RecordTimeline(1, true)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordModelCall("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `lexcounsel_model_calls_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing model call counter:\n%s", rec.Body.String())
	}
}
