package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DolphinMetrics instruments the stats actor.
type DolphinMetrics struct {
	EventsTotal  *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	Icounter     prometheus.Gauge
	Butthurt     prometheus.Gauge
	Level        prometheus.Gauge
	SavesTotal   *prometheus.CounterVec
	SaveDuration prometheus.Histogram
}

// NewDolphinMetrics creates the actor metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewDolphinMetrics(reg prometheus.Registerer) *DolphinMetrics {
	f := promauto.With(reg)
	return &DolphinMetrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "events_total",
			Help:      "Events processed by the stats actor, by kind.",
		}, []string{"kind"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "queue_depth",
			Help:      "Events waiting in the actor queue.",
		}),
		Icounter: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "icounter",
			Help:      "Current experience counter.",
		}),
		Butthurt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "butthurt",
			Help:      "Current mood penalty.",
		}),
		Level: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "level",
			Help:      "Current level.",
		}),
		SavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "saves_total",
			Help:      "Persistence writes, by result.",
		}, []string{"result"}),
		SaveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "dolphin",
			Name:      "save_duration_seconds",
			Help:      "Duration of persistence writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

// ObserveEvent counts a processed event.
func (m *DolphinMetrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth records the number of queued events.
func (m *DolphinMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetStats records the progression gauges.
func (m *DolphinMetrics) SetStats(icounter, butthurt uint32, level uint8) {
	if m == nil {
		return
	}
	m.Icounter.Set(float64(icounter))
	m.Butthurt.Set(float64(butthurt))
	m.Level.Set(float64(level))
}

// ObserveSave records a persistence write.
func (m *DolphinMetrics) ObserveSave(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SavesTotal.WithLabelValues(result).Inc()
	m.SaveDuration.Observe(d.Seconds())
}

// ReceiverMetrics instruments the sub-GHz receiver scene.
type ReceiverMetrics struct {
	CapturesTotal  *prometheus.CounterVec
	HistoryEntries prometheus.Gauge
	FrequencyHz    prometheus.Gauge
	HopperSteps    prometheus.Counter
}

// NewReceiverMetrics creates the receiver metrics and registers them with reg.
func NewReceiverMetrics(reg prometheus.Registerer) *ReceiverMetrics {
	f := promauto.With(reg)
	return &ReceiverMetrics{
		CapturesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "subghz",
			Name:      "captures_total",
			Help:      "Decoded captures offered to the history, by result.",
		}, []string{"result"}),
		HistoryEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "subghz",
			Name:      "history_entries",
			Help:      "Entries currently held in the receiver history.",
		}),
		FrequencyHz: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "subghz",
			Name:      "frequency_hz",
			Help:      "Frequency the receiver is tuned to.",
		}),
		HopperSteps: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "subghz",
			Name:      "hopper_steps_total",
			Help:      "Frequency changes made by the hopper.",
		}),
	}
}

// ObserveCapture counts a capture and records the history size.
func (m *ReceiverMetrics) ObserveCapture(added bool, entries int) {
	if m == nil {
		return
	}
	result := "rejected"
	if added {
		result = "added"
	}
	m.CapturesTotal.WithLabelValues(result).Inc()
	m.HistoryEntries.Set(float64(entries))
}

// SetHistoryEntries records the history size.
func (m *ReceiverMetrics) SetHistoryEntries(n int) {
	if m == nil {
		return
	}
	m.HistoryEntries.Set(float64(n))
}

// SetFrequency records the tuned frequency.
func (m *ReceiverMetrics) SetFrequency(hz uint32) {
	if m == nil {
		return
	}
	m.FrequencyHz.Set(float64(hz))
}

// ObserveHop counts a hopper frequency change.
func (m *ReceiverMetrics) ObserveHop() {
	if m == nil {
		return
	}
	m.HopperSteps.Inc()
}
