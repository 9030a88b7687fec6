// Package metrics holds the Prometheus collectors for the gate pipeline.
// All recording methods accept a nil receiver so components can run without
// metrics in tests.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	FramesTotal        prometheus.Counter
	DetectionsTotal    *prometheus.CounterVec // result: kept, suppressed, low_score
	OCRAttemptsTotal   *prometheus.CounterVec // result: text, empty, skipped, error
	NotificationsTotal *prometheus.CounterVec // kind: notify, timeout; status: ok, error
	DecisionsTotal     *prometheus.CounterVec // decision: allowed, denied
	TimeoutsTotal      prometheus.Counter
	PendingPlates      prometheus.Gauge
	BlacklistedPlates  prometheus.Gauge
	ActiveTracks       prometheus.Gauge
}

func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_frames_total",
			Help: "Total number of frames processed by the gate pipeline",
		}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_detections_total",
			Help: "Plate detections by deduplication result",
		}, []string{"result"}),
		OCRAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_ocr_attempts_total",
			Help: "Text recognition attempts by result",
		}, []string{"result"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_notifications_total",
			Help: "Owner notifications by kind and delivery status",
		}, []string{"kind", "status"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Consumed approval decisions by value",
		}, []string{"decision"}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_response_timeouts_total",
			Help: "Pending requests that expired without a decision",
		}),
		PendingPlates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_pending_plates",
			Help: "Plates currently waiting for an owner decision",
		}),
		BlacklistedPlates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_blacklisted_plates",
			Help: "Plates currently in the post-timeout cool-down window",
		}),
		ActiveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_active_tracks",
			Help: "Tracks reported alive by the tracker in the last frame",
		}),
	}

	collectors := []prometheus.Collector{
		m.FramesTotal, m.DetectionsTotal, m.OCRAttemptsTotal, m.NotificationsTotal,
		m.DecisionsTotal, m.TimeoutsTotal, m.PendingPlates, m.BlacklistedPlates, m.ActiveTracks,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register gate metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
}

func (m *Metrics) Detections(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DetectionsTotal.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) OCRAttempt(result string) {
	if m == nil {
		return
	}
	m.OCRAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) Timeout() {
	if m == nil {
		return
	}
	m.TimeoutsTotal.Inc()
}

func (m *Metrics) States(pending, blacklisted int) {
	if m == nil {
		return
	}
	m.PendingPlates.Set(float64(pending))
	m.BlacklistedPlates.Set(float64(blacklisted))
}

func (m *Metrics) Tracks(n int) {
	if m == nil {
		return
	}
	m.ActiveTracks.Set(float64(n))
}
