package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"spycats/internal/domain"
)

func TestResult(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.ErrMissionAssigned, "mission_assigned"},
		{fmt.Errorf("wrapped: %w", domain.Errorf(domain.KindNotFound, "spy cat not found")), "not_found"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		if got := Result(tc.err); got != tc.want {
			t.Fatalf("Result(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("DeleteMission", nil)
	m.ObserveOperation("DeleteMission", domain.ErrMissionAssigned)
	m.ObserveOperation("DeleteMission", domain.ErrMissionAssigned)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("DeleteMission", "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("DeleteMission", "mission_assigned")); got != 2 {
		t.Fatalf("mission_assigned count = %v", got)
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/spy_cats/{id}", 404, 3*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/spy_cats/{id}", "404")); got != 1 {
		t.Fatalf("route count = %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("GetAgent", nil)
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
}
