package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MatchCreated(3)
	m.Transition("match_fulfilled")
	m.Transition("match_fulfilled")
	m.Conflict("request already fulfilled")
	m.SweepOutcome("expired", 2)

	assert.InDelta(t, 1, testutil.ToFloat64(m.matchesCreated), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.transitions.WithLabelValues("match_fulfilled")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.conflicts.WithLabelValues("request already fulfilled")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.expirySweeps.WithLabelValues("expired")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MatchCreated(1)
		m.Transition("x")
		m.Conflict("y")
		m.SweepOutcome("z", 1)
		m.HTTPRequest("GET", "200", 0.1)
	})
}
