package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the capture worker.
type Metrics struct {
	registry              *prometheus.Registry
	framesCapturedTotal   *prometheus.CounterVec
	framesPublishedTotal  *prometheus.CounterVec
	reconnectsTotal       *prometheus.CounterVec
	terminationsTotal     *prometheus.CounterVec
	clipsCommittedTotal   *prometheus.CounterVec
	framesSampledTotal    *prometheus.CounterVec
	detectionsSavedTotal  *prometheus.CounterVec
	activeSupervisors     prometheus.Gauge
	activeConsumers       prometheus.Gauge
}

// New creates and registers the worker metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesCapturedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_frames_total",
		Help: "Total frames successfully read from the decode handle",
	}, []string{"stream_id"})
	framesPublishedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_frames_published_total",
		Help: "Total frames written to the shared frame store",
	}, []string{"stream_id"})
	reconnectsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_reconnect_attempts_total",
		Help: "Total reconnect attempts across stall episodes",
	}, []string{"stream_id"})
	terminationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_terminations_total",
		Help: "Total supervisors terminated on an exhausted reconnect budget",
	}, []string{"stream_id"})
	clipsCommittedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_clips_committed_total",
		Help: "Total clip windows committed to the metadata store",
	}, []string{"stream_id"})
	framesSampledTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_frames_sampled_total",
		Help: "Total frames sampled from the shared frame store",
	}, []string{"stream_id"})
	detectionsSavedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_objects_saved_total",
		Help: "Total detected objects persisted",
	}, []string{"stream_id"})
	activeSupervisors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capture_active_supervisors",
		Help: "Number of live capture supervisors",
	})
	activeConsumers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detection_active_consumers",
		Help: "Number of live frame consumer loops",
	})

	registry.MustRegister(
		framesCapturedTotal,
		framesPublishedTotal,
		reconnectsTotal,
		terminationsTotal,
		clipsCommittedTotal,
		framesSampledTotal,
		detectionsSavedTotal,
		activeSupervisors,
		activeConsumers,
	)

	return &Metrics{
		registry:             registry,
		framesCapturedTotal:  framesCapturedTotal,
		framesPublishedTotal: framesPublishedTotal,
		reconnectsTotal:      reconnectsTotal,
		terminationsTotal:    terminationsTotal,
		clipsCommittedTotal:  clipsCommittedTotal,
		framesSampledTotal:   framesSampledTotal,
		detectionsSavedTotal: detectionsSavedTotal,
		activeSupervisors:    activeSupervisors,
		activeConsumers:      activeConsumers,
	}
}

func (m *Metrics) IncFramesCaptured(streamID string) {
	m.framesCapturedTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) IncFramesPublished(streamID string) {
	m.framesPublishedTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) IncReconnects(streamID string) {
	m.reconnectsTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) IncTerminations(streamID string) {
	m.terminationsTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) IncClipsCommitted(streamID string) {
	m.clipsCommittedTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) IncFramesSampled(streamID string) {
	m.framesSampledTotal.WithLabelValues(streamID).Inc()
}

func (m *Metrics) AddDetectionsSaved(streamID string, n int) {
	m.detectionsSavedTotal.WithLabelValues(streamID).Add(float64(n))
}

func (m *Metrics) SetActiveSupervisors(n int) {
	m.activeSupervisors.Set(float64(n))
}

func (m *Metrics) SetActiveConsumers(n int) {
	m.activeConsumers.Set(float64(n))
}

// Handler serves the registry. updateGauges runs before each scrape to
// refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
