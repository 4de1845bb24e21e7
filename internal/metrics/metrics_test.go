package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.Analysis(OutcomeOK, "watertight", 20*time.Millisecond)
	m.Analysis(OutcomeOK, "convex_hull", 5*time.Millisecond)
	m.Analysis(OutcomeUnsupported, "", 0)
	m.Lead(OutcomeOK)
	m.SinkFailure("redis")
	m.PreviewEvicted(3)
	m.PreviewEvicted(0)

	if got := testutil.ToFloat64(m.analyses.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("ok analyses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.volumeMethods.WithLabelValues("watertight")); got != 1 {
		t.Fatalf("watertight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.previewEvictions); got != 3 {
		t.Fatalf("evictions = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`meshquote_analyses_total{outcome="unsupported"} 1`,
		`meshquote_lead_sink_failures_total{sink="redis"} 1`,
		`meshquote_quote_requests_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Analysis(OutcomeOK, "watertight", time.Second)
	m.Lead(OutcomeInvalid)
	m.SinkFailure("log")
	m.PreviewEvicted(1)
}
