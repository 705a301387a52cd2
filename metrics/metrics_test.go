package metrics_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/skv/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	m.OpenTransactions.Inc()
	m.OpenTransactions.Inc()
	m.OpenTransactions.Dec()
	m.DeserializationErrors.Inc()
	m.TxnBeginLatency.Observe(0.01)

	families, err := registry.Gather()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	names := []string{}

	for _, family := range families {
		names = append(names, family.GetName())
	}

	expected := []string{
		"skv_client_conflicts_total",
		"skv_client_txn_begin_latency_seconds",
		"skv_client_txn_duration_seconds",
		"skv_client_txn_end_latency_seconds",
		"skv_session_deserialization_errors",
		"skv_session_open_txns",
	}

	if diff := cmp.Diff(expected, names); diff != "" {
		t.Fatal(diff)
	}

	if v := testutil.ToFloat64(m.OpenTransactions); v != 1 {
		t.Fatalf("expected 1 open transaction, got %v", v)
	}

	if v := testutil.ToFloat64(m.DeserializationErrors); v != 1 {
		t.Fatalf("expected 1 deserialization error, got %v", v)
	}
}

func TestUnregistered(t *testing.T) {
	m := metrics.New(nil)

	m.Conflicts.Inc()

	if v := testutil.ToFloat64(m.Conflicts); v != 1 {
		t.Fatalf("expected 1 conflict, got %v", v)
	}
}
