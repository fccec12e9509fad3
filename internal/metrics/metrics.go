package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jonglog"

// Metrics holds the collectors of one process. Services accept a nil
// *Metrics and skip recording.
type Metrics struct {
	Registry *prometheus.Registry

	resolutions   *prometheus.CounterVec
	tieBreakSteps *prometheus.CounterVec
	settlements   prometheus.Counter
	transfers     prometheus.Histogram
	feedClients   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_resolutions_total",
			Help:      "Match submissions by input mode and result.",
		}, []string{"mode", "result"}),
		tieBreakSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiebreak_steps_total",
			Help:      "Tie-break protocol actions.",
		}, []string{"action"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlements computed.",
		}),
		transfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_transfers",
			Help:      "Transfers needed to clear a settlement.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Open live feed connections.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.resolutions,
		m.tieBreakSteps,
		m.settlements,
		m.transfers,
		m.feedClients,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Resolution records a submission; result is resolved, tie or rejected.
func (m *Metrics) Resolution(mode, result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) TieBreakStep(action string) {
	if m == nil {
		return
	}
	m.tieBreakSteps.WithLabelValues(action).Inc()
}

func (m *Metrics) Settlement(transfers int) {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.transfers.Observe(float64(transfers))
}

func (m *Metrics) FeedClient(delta int) {
	if m == nil {
		return
	}
	m.feedClients.Add(float64(delta))
}
