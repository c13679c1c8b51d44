package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.requests.WithLabelValues("lending", "lending_getLoan", "error"))
	m.Observe("lending", "lending_getLoan", 404, 5*time.Millisecond)
	after := testutil.ToFloat64(m.requests.WithLabelValues("lending", "lending_getLoan", "error"))
	if after-before != 1 {
		t.Fatalf("expected error request to be counted once, delta=%v", after-before)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("lending", "lending_getLoan", "404")); got < 1 {
		t.Fatalf("expected status counter, got %v", got)
	}
}

func TestLendingMetricsDefaultsLabels(t *testing.T) {
	m := Lending()
	m.RecordTransaction("FundLoan", "", time.Millisecond)
	if got := testutil.ToFloat64(m.transactions.WithLabelValues("FundLoan", "success")); got < 1 {
		t.Fatalf("expected success outcome, got %v", got)
	}
	m.RecordEvents([]string{"lending.loan.funded", ""})
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected blank event type to be labelled unknown")
	}
	var nilMetrics *LendingMetrics
	nilMetrics.RecordThrottle("quota")
}
