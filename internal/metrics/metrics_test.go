package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Record("WB", "created")
	m.Record("WB", "created")
	m.Conflict("WB", "MultiCanonicalMatch")
	m.Run("WB", "ok", 3*time.Second, 2)
	m.Merge("merged")

	if got := testutil.ToFloat64(m.Records.WithLabelValues("WB", "created")); got != 2 {
		t.Errorf("records = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OutOfCorpus.WithLabelValues("WB")); got != 2 {
		t.Errorf("out of corpus = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Merges.WithLabelValues("merged")); got != 1 {
		t.Errorf("merges = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Record("WB", "created")
	m.Conflict("WB", "x")
	m.Run("WB", "ok", time.Second, 0)
	m.Merge("merged")
}

func TestNew_Unregistered(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.Record("WB", "created")
	if got := testutil.ToFloat64(b.Records.WithLabelValues("WB", "created")); got != 0 {
		t.Errorf("unregistered instruments share state: %v", got)
	}
}
