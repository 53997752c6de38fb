package processor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 清洗任务的Prometheus指标
type Metrics struct {
	Registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	Duration     prometheus.Histogram
	RowsRemoved  *prometheus.CounterVec
	RowsOut      prometheus.Gauge
	LastSuccess  prometheus.Gauge
	StageSeconds *prometheus.HistogramVec
}

// NewMetrics 在独立的Registry上注册指标，便于测试中重复创建
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rental",
			Name:      "clean_runs_total",
			Help:      "Cleaning runs by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rental",
			Name:      "clean_duration_seconds",
			Help:      "Wall time of a full cleaning run.",
			Buckets:   prometheus.DefBuckets,
		}),
		RowsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rental",
			Name:      "rows_removed_total",
			Help:      "Rows removed by cleaning stage.",
		}, []string{"stage"}),
		RowsOut: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rental",
			Name:      "cleaned_rows",
			Help:      "Rows in the last cleaned table.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rental",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		StageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rental",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each cleaning stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"stage"}),
	}

	m.Registry.MustRegister(m.Runs, m.Duration, m.RowsRemoved, m.RowsOut, m.LastSuccess, m.StageSeconds)
	return m
}

// Observe 记录一次成功的清洗
func (m *Metrics) Observe(r *Report) {
	if m == nil || r == nil {
		return
	}
	m.Runs.WithLabelValues("success").Inc()
	m.Duration.Observe(r.Elapsed.Seconds())
	m.RowsOut.Set(float64(r.After.Rows))
	m.LastSuccess.Set(float64(r.Started.Add(r.Elapsed).Unix()))
	for _, s := range r.Stages {
		m.StageSeconds.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
		if removed := s.RowsIn - s.RowsOut; removed > 0 {
			m.RowsRemoved.WithLabelValues(s.Name).Add(float64(removed))
		}
	}
}

// Failed 记录一次失败的清洗
func (m *Metrics) Failed() {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues("failure").Inc()
}
