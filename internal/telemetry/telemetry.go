package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/life2you_mini/poolcore/internal/model"
)

// Namespace 指标命名空间
const Namespace = "poolcore"

// Sink 分析核心的遥测出口，实现必须并发安全
type Sink interface {
	IncObservations()
	IncRejected()
	IncAnomaly(severity model.Severity)
	ObservePhase(phase model.Phase, d time.Duration)
	ObserveFeatureBuild(d time.Duration)
}

// Nop 不做任何事的 Sink
type Nop struct{}

func (Nop) IncObservations()                        {}
func (Nop) IncRejected()                            {}
func (Nop) IncAnomaly(model.Severity)               {}
func (Nop) ObservePhase(model.Phase, time.Duration) {}
func (Nop) ObserveFeatureBuild(time.Duration)       {}

// OrNop 为 nil 时返回 Nop
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Prometheus 基于 client_golang 的 Sink
type Prometheus struct {
	observations  prometheus.Counter
	rejected      prometheus.Counter
	anomalies     *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	featureBuild  prometheus.Histogram
}

// NewPrometheus 在给定 Registerer 上注册全部指标，reg 为 nil 时使用默认注册表
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		observations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "observations_total",
			Help:      "Total number of observations analyzed.",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "observations_rejected_total",
			Help:      "Total number of observations rejected by validation.",
		}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "anomalies_total",
			Help:      "Total number of anomalies detected per severity.",
		}, []string{"severity"}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each analysis phase in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"phase"}),
		featureBuild: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "feature_vector_build_duration_seconds",
			Help:      "Duration of feature vector synthesis in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (p *Prometheus) IncObservations() { p.observations.Inc() }

func (p *Prometheus) IncRejected() { p.rejected.Inc() }

func (p *Prometheus) IncAnomaly(severity model.Severity) {
	p.anomalies.WithLabelValues(string(severity)).Inc()
}

func (p *Prometheus) ObservePhase(phase model.Phase, d time.Duration) {
	p.phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

func (p *Prometheus) ObserveFeatureBuild(d time.Duration) {
	p.featureBuild.Observe(d.Seconds())
}
