package monitoring

import (
	"time"

	"camwatch/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records session pipeline metrics. It satisfies
// ports.SessionMetrics and is shared by every session.
type PrometheusCollector struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	decodersActive prometheus.Gauge
	decoderStops   *prometheus.CounterVec

	framesRelayed   prometheus.Counter
	bytesRelayed    prometheus.Counter
	framesSkipped   *prometheus.CounterVec
	frameProcessing prometheus.Histogram

	detectionDuration prometheus.Histogram
	detectionFaces    prometheus.Counter
	detectionErrors   prometheus.Counter

	alertsRaised *prometheus.CounterVec
	alertsFailed *prometheus.CounterVec
}

// NewPrometheusCollector registers the collectors on reg. A nil reg uses the
// default registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_sessions_active",
			Help: "Number of connected client sessions",
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_sessions_total",
			Help: "Total number of client sessions opened",
		}),

		decodersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_decoders_active",
			Help: "Number of running decode processes",
		}),

		decoderStops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_decoder_stops_total",
			Help: "Decode runs ended, by reason",
		}, []string{"reason"}),

		framesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_frames_relayed_total",
			Help: "Total number of frames delivered to clients",
		}),

		bytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_frames_relayed_bytes_total",
			Help: "Total JPEG bytes delivered to clients",
		}),

		framesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_frames_skipped_total",
			Help: "Frames dropped before delivery, by reason",
		}, []string{"reason"}),

		frameProcessing: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camwatch_frame_processing_seconds",
			Help:    "Time from frame read to encoded frame",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		detectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camwatch_detection_duration_seconds",
			Help:    "Face model latency per detection pass",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		detectionFaces: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_detection_faces_total",
			Help: "Faces found above the confidence threshold",
		}),

		detectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_detection_errors_total",
			Help: "Detection passes that failed",
		}),

		alertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_alerts_raised_total",
			Help: "Face alerts raised, by stream",
		}, []string{"stream_id"}),

		alertsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_alerts_failed_total",
			Help: "Alert pipeline failures, by stage",
		}, []string{"stage"}),
	}
}

func (p *PrometheusCollector) SessionOpened() {
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

func (p *PrometheusCollector) SessionClosed() {
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) DecoderStarted() {
	p.decodersActive.Inc()
}

func (p *PrometheusCollector) DecoderStopped(reason string) {
	p.decodersActive.Dec()
	p.decoderStops.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) FrameRelayed(bytes int, processing time.Duration) {
	p.framesRelayed.Inc()
	p.bytesRelayed.Add(float64(bytes))
	p.frameProcessing.Observe(processing.Seconds())
}

func (p *PrometheusCollector) FrameSkipped(reason string) {
	p.framesSkipped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) DetectionObserved(duration time.Duration, candidates int, err error) {
	p.detectionDuration.Observe(duration.Seconds())
	if err != nil {
		p.detectionErrors.Inc()
		return
	}
	p.detectionFaces.Add(float64(candidates))
}

func (p *PrometheusCollector) AlertRaised(streamID domain.StreamID) {
	label := string(streamID)
	if label == "" {
		label = "unbound"
	}
	p.alertsRaised.WithLabelValues(label).Inc()
}

func (p *PrometheusCollector) AlertFailed(stage string) {
	p.alertsFailed.WithLabelValues(stage).Inc()
}
