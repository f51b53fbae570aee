package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPrometheusCollector_SessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionsTotal))

	c.DecoderStarted()
	c.DecoderStopped("end_of_stream")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.decodersActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decoderStops.WithLabelValues("end_of_stream")))

	c.FrameRelayed(1000, 5*time.Millisecond)
	c.FrameRelayed(500, 5*time.Millisecond)
	c.FrameSkipped("encode")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesRelayed))
	assert.Equal(t, 1500.0, testutil.ToFloat64(c.bytesRelayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesSkipped.WithLabelValues("encode")))
}

func TestPrometheusCollector_DetectionAndAlerts(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.DetectionObserved(10*time.Millisecond, 2, nil)
	c.DetectionObserved(10*time.Millisecond, 0, errors.New("model down"))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.detectionFaces))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.detectionErrors))

	c.AlertRaised("stream_1")
	c.AlertRaised("")
	c.AlertFailed("snapshot")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsRaised.WithLabelValues("stream_1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsRaised.WithLabelValues("unbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsFailed.WithLabelValues("snapshot")))
}

func TestPrometheusCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusCollector(reg)
	assert.Panics(t, func() { NewPrometheusCollector(reg) })
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker(zap.NewNop().Sugar())
	h.AddPingCheck("database", PingFunc(func(context.Context) error { return nil }), 0, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") }, 0, time.Second)
	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["database"])
	assert.Equal(t, "connection refused", status.Checks["redis"])
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_TimeoutApplies(t *testing.T) {
	h := NewHealthChecker(zap.NewNop().Sugar())
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 20*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}

func TestHealthChecker_BackgroundChecks(t *testing.T) {
	h := NewHealthChecker(zap.NewNop().Sugar())
	calls := make(chan struct{}, 10)
	h.AddCheck("mqtt", func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	}, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("background check never ran")
	}
}
