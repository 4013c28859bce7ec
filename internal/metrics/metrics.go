// Package metrics exposes the sentinel's Prometheus metrics and persists
// counter values so they survive restarts.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "guardian"
	subsystem = "sentinel"
)

// Store persists metric values.
type Store interface {
	SaveMetric(metricName string, value float64) error
	GetMetric(metricName string) (float64, error)
	SaveMetricWithLabels(metricName, labelKey, labelValue string, value float64) error
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)
}

type Metrics struct {
	ScansTotal     prometheus.Counter
	EventsSeen     prometheus.Counter
	Analyses       *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	Publishes      *prometheus.CounterVec
	Mentions       *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	LastPrice      prometheus.Gauge

	registry *prometheus.Registry
	mutex    sync.Mutex
}

func New() *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scans_total",
			Help:      "The total number of transfer scan cycles",
		}),
		EventsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_seen_total",
			Help:      "The total number of new transfer events recorded in the ledger",
		}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analyses_total",
			Help:      "The total number of analyzer decisions by event kind",
		}, []string{"kind"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fallbacks_total",
			Help:      "The total number of decisions that used the deterministic fallback",
		}, []string{"kind"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publishes_total",
			Help:      "The total number of publish attempts by outcome",
		}, []string{"outcome"}),
		Mentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mentions_total",
			Help:      "The total number of processed mentions by result",
		}, []string{"result"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upstream_errors_total",
			Help:      "The total number of failed calls to external APIs",
		}, []string{"source"}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_price_usd",
			Help:      "The last observed spot price",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ScansTotal,
		m.EventsSeen,
		m.Analyses,
		m.Fallbacks,
		m.Publishes,
		m.Mentions,
		m.UpstreamErrors,
		m.LastPrice,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) labeled() map[string]labeledMetric {
	return map[string]labeledMetric{
		"analyses_total":        {m.Analyses, "kind"},
		"fallbacks_total":       {m.Fallbacks, "kind"},
		"publishes_total":       {m.Publishes, "outcome"},
		"mentions_total":        {m.Mentions, "result"},
		"upstream_errors_total": {m.UpstreamErrors, "source"},
	}
}

type labeledMetric struct {
	vec   *prometheus.CounterVec
	label string
}

// LoadFrom restores persisted counter values. Call once at startup.
func (m *Metrics) LoadFrom(store Store) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	scans, _ := store.GetMetric("scans_total")
	events, _ := store.GetMetric("events_seen_total")
	price, _ := store.GetMetric("last_price_usd")
	m.ScansTotal.Add(scans)
	m.EventsSeen.Add(events)
	m.LastPrice.Set(price)

	for name, lm := range m.labeled() {
		values, err := store.GetMetricsWithLabels(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		for labelValue, value := range values[lm.label] {
			lm.vec.WithLabelValues(labelValue).Add(value)
		}
	}

	log.Info("Metrics loaded from database.")
}

// SaveTo persists current counter values.
func (m *Metrics) SaveTo(store Store) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	saveOrLog(store.SaveMetric("scans_total", GetMetricValue(m.ScansTotal)))
	saveOrLog(store.SaveMetric("events_seen_total", GetMetricValue(m.EventsSeen)))
	saveOrLog(store.SaveMetric("last_price_usd", GetMetricValue(m.LastPrice)))

	for name, lm := range m.labeled() {
		metricChan := make(chan prometheus.Metric, 16)
		go func() {
			lm.vec.Collect(metricChan)
			close(metricChan)
		}()

		for metric := range metricChan {
			metricProto := &dto.Metric{}
			if err := metric.Write(metricProto); err != nil {
				log.Errorf("Failed to read %s metric: %v", name, err)
				continue
			}
			var labelValue string
			for _, label := range metricProto.Label {
				if label.GetName() == lm.label {
					labelValue = label.GetValue()
				}
			}
			saveOrLog(store.SaveMetricWithLabels(name, lm.label, labelValue, metricProto.Counter.GetValue()))
		}
	}

	log.Debug("Metrics saved to database.")
}

func saveOrLog(err error) {
	if err != nil {
		log.Errorf("Failed to save metric: %v", err)
	}
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	m, ok := <-metricChan
	if !ok {
		return 0
	}

	metricProto := &dto.Metric{}
	if err := m.Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
