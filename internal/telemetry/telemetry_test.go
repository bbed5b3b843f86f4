package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life2you_mini/poolcore/internal/model"
)

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.IncObservations()
	p.IncObservations()
	p.IncRejected()
	p.IncAnomaly(model.SeverityEmergency)
	p.IncAnomaly(model.SeverityEmergency)
	p.IncAnomaly(model.SeverityWarning)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.observations))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.anomalies.WithLabelValues("emergency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.anomalies.WithLabelValues("warning")))

	expected := `
# HELP poolcore_observations_total Total number of observations analyzed.
# TYPE poolcore_observations_total counter
poolcore_observations_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "poolcore_observations_total"))
}

func TestPrometheus_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.ObservePhase(model.PhaseStats, 3*time.Millisecond)
	p.ObservePhase(model.PhaseFeatures, time.Millisecond)
	p.ObserveFeatureBuild(time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "poolcore_phase_duration_seconds", "poolcore_feature_vector_build_duration_seconds")
	require.NoError(t, err)
	// 两个 phase 标签 + 一个直方图
	assert.Equal(t, 3, count)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	p := NewPrometheus(prometheus.NewRegistry())
	assert.Same(t, p, OrNop(p))

	// Nop 不应 panic
	var s Sink = Nop{}
	s.IncObservations()
	s.IncAnomaly(model.SeverityCritical)
	s.ObservePhase(model.PhaseAlerts, time.Second)
}
