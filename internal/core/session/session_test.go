package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/internal/core/services"
	"camwatch/internal/infrastructure/repositories/memory"
	"camwatch/internal/infrastructure/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testWidth  = 4
	testHeight = 2
	frameBytes = testWidth * testHeight * 3
)

var errDecoderStopped = errors.New("decoder stopped")

type fakeDecoder struct {
	frames   chan []byte
	lines    chan string
	startErr error
	size     int

	mu      sync.Mutex
	url     string
	stops   int
	stopped chan struct{}
	once    sync.Once
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		frames:  make(chan []byte, 16),
		lines:   make(chan string, 4),
		stopped: make(chan struct{}),
	}
}

func (d *fakeDecoder) Start(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return d.startErr
}

func (d *fakeDecoder) ReadFrame(buf []byte) (int, error) {
	select {
	case f, ok := <-d.frames:
		if !ok {
			return 0, io.EOF
		}
		n := copy(buf, f)
		if n < len(buf) {
			return n, io.ErrUnexpectedEOF
		}
		return n, nil
	case <-d.stopped:
		return 0, errDecoderStopped
	}
}

func (d *fakeDecoder) ReadErrorLine() (string, error) {
	select {
	case l := <-d.lines:
		return l, nil
	case <-d.stopped:
		return "", io.EOF
	}
}

func (d *fakeDecoder) Stop() error {
	d.mu.Lock()
	d.stops++
	d.mu.Unlock()
	d.once.Do(func() { close(d.stopped) })
	return nil
}

func (d *fakeDecoder) FrameSize() int {
	if d.size > 0 {
		return d.size
	}
	return frameBytes
}

func (d *fakeDecoder) isStopped() bool {
	select {
	case <-d.stopped:
		return true
	default:
		return false
	}
}

// decoderFactory hands out prepared decoders in order and tracks how many are live.
type decoderFactory struct {
	mu       sync.Mutex
	queue    []*fakeDecoder
	created  []*fakeDecoder
	maxLive  int
	startErr error
}

func (f *decoderFactory) add(d *fakeDecoder) *fakeDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, d)
	return d
}

func (f *decoderFactory) New() ports.FrameDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()

	var d *fakeDecoder
	if len(f.queue) > 0 {
		d, f.queue = f.queue[0], f.queue[1:]
	} else {
		d = newFakeDecoder()
	}
	d.startErr = f.startErr

	live := 1
	for _, prev := range f.created {
		if !prev.isStopped() {
			live++
		}
	}
	if live > f.maxLive {
		f.maxLive = live
	}
	f.created = append(f.created, d)
	return d
}

func (f *decoderFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeTransport struct {
	mu       sync.Mutex
	binary   [][]byte
	messages []map[string]interface{}
	closed   bool
	sendErr  error
	commands chan domain.Command
	recvErrs chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		commands: make(chan domain.Command, 8),
		recvErrs: make(chan error, 8),
	}
}

func (t *fakeTransport) ReceiveCommand(ctx context.Context) (domain.Command, error) {
	select {
	case cmd := <-t.commands:
		return cmd, nil
	case err := <-t.recvErrs:
		return domain.Command{}, err
	case <-ctx.Done():
		return domain.Command{}, ctx.Err()
	}
}

func (t *fakeTransport) SendBinary(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.binary = append(t.binary, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) SendJSON(ctx context.Context, v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	t.messages = append(t.messages, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) frameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.binary)
}

func (t *fakeTransport) messagesOfType(kind string) []map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range t.messages {
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

func (t *fakeTransport) setSendErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

type fakeSnapshots struct {
	mu      sync.Mutex
	boxes   []domain.BoundingBox
	removed []string
	err     error
}

func (s *fakeSnapshots) Save(ctx context.Context, frame domain.Frame, box domain.BoundingBox, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.boxes = append(s.boxes, box)
	return "detection_test.jpg", nil
}

func (s *fakeSnapshots) URL(path string) string { return "/media/detections/" + path }

func (s *fakeSnapshots) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return nil
}

func (s *fakeSnapshots) saved() []domain.BoundingBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BoundingBox(nil), s.boxes...)
}

// recordingMetrics counts the skip and failure reasons a session reports.
type recordingMetrics struct {
	nopMetrics

	mu      sync.Mutex
	skipped map[string]int
	failed  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{skipped: map[string]int{}, failed: map[string]int{}}
}

func (m *recordingMetrics) FrameSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[reason]++
}

func (m *recordingMetrics) AlertFailed(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[stage]++
}

func (m *recordingMetrics) skips(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipped[reason]
}

func (m *recordingMetrics) failures(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[stage]
}

// failingAlerts refuses to record any alert.
type failingAlerts struct {
	ports.AlertService
}

func (failingAlerts) RaiseAlert(ctx context.Context, streamID domain.StreamID, confidence float64, imagePath string) (*domain.Detection, *domain.Alert, error) {
	return nil, nil, errors.New("database is locked")
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAlert(ctx context.Context, event *domain.AlertEvent) error {
	return m.Called(ctx, event).Error(0)
}

type harness struct {
	session   *StreamSession
	transport *fakeTransport
	decoders  *decoderFactory
	snapshots *fakeSnapshots
	streams   ports.StreamService
	alerts    ports.AlertService
	store     *memory.Store
}

func testConfig() Config {
	return Config{
		FrameWidth:        testWidth,
		FrameHeight:       testHeight,
		IdleInterval:      5 * time.Millisecond,
		StatsEveryFrames:  30,
		StatsWindow:       60,
		JPEGQuality:       80,
		DetectionEnabled:  true,
		DetectionInterval: 0,
		Threshold:         0.3,
		Cooldown:          30 * time.Second,
		DetectionTimeout:  time.Second,
	}
}

func newHarness(t *testing.T, cfg Config, model ports.FaceModel, publisher ports.AlertPublisher, opts ...func(*Deps)) *harness {
	t.Helper()
	store := memory.NewStore()
	h := &harness{
		transport: newFakeTransport(),
		decoders:  &decoderFactory{},
		snapshots: &fakeSnapshots{},
		streams:   services.NewStreamService(store.Streams()),
		alerts:    services.NewAlertService(store.Streams(), store.Detections(), store.Alerts()),
		store:     store,
	}
	deps := Deps{
		Transport:  h.transport,
		NewDecoder: h.decoders.New,
		Model:      model,
		Streams:    h.streams,
		Alerts:     h.alerts,
		Snapshots:  h.snapshots,
		Publisher:  publisher,
		Logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.session = New(cfg, deps)
	t.Cleanup(h.session.Disconnect)
	return h
}

func (h *harness) createStream(t *testing.T) domain.StreamID {
	t.Helper()
	stream, err := h.streams.CreateStream(context.Background(), "Lobby", "", "rtsp://cam/lobby")
	require.NoError(t, err)
	return stream.ID
}

func noFaces() ports.FaceModel {
	return modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return nil, nil
	})
}

func fullFrame() []byte { return make([]byte, frameBytes) }

func waitIdle(t *testing.T, s *StreamSession) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == domain.SessionIdle }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_ShortReadEndsRun(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	dec.frames <- fullFrame()
	dec.frames <- fullFrame()
	dec.frames <- make([]byte, frameBytes/2)

	require.NoError(t, h.session.Connect(context.Background(), "", ""))
	assert.Equal(t, domain.SessionIdle, h.session.State())

	require.NoError(t, h.session.HandleCommand(context.Background(), domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/1"}))
	waitIdle(t, h.session)

	assert.Equal(t, 2, h.transport.frameCount())
	assert.True(t, dec.isStopped())
	assert.Equal(t, "rtsp://cam/1", dec.url)
	assert.Equal(t, "", h.session.URL())
	assert.Equal(t, int64(2), h.session.Stats().TotalFrames)
}

func TestSession_StartWithoutURL(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	require.NoError(t, h.session.Connect(context.Background(), "", ""))

	require.NoError(t, h.session.HandleCommand(context.Background(), domain.Command{Kind: domain.CommandStart}))

	errs := h.transport.messagesOfType("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "No RTSP URL provided", errs[0]["message"])
	assert.Equal(t, 0, h.decoders.count())
	assert.Equal(t, domain.SessionIdle, h.session.State())
}

func TestSession_ConnectWithURLStartsImmediately(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/initial"))

	assert.Equal(t, domain.SessionRunning, h.session.State())
	assert.Equal(t, "rtsp://cam/initial", h.session.URL())
	dec.frames <- fullFrame()
	require.Eventually(t, func() bool { return h.transport.frameCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_RestartNeverOverlapsDecoders(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	require.NoError(t, h.session.Connect(context.Background(), "", ""))
	ctx := context.Background()

	for _, url := range []string{"rtsp://cam/1", "rtsp://cam/2", "rtsp://cam/3"} {
		require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandStart, URL: url}))
		assert.Equal(t, domain.SessionRunning, h.session.State())
	}

	assert.Equal(t, 3, h.decoders.count())
	assert.Equal(t, 1, h.decoders.maxLive)
	assert.True(t, h.decoders.created[0].isStopped())
	assert.True(t, h.decoders.created[1].isStopped())
	assert.False(t, h.decoders.created[2].isStopped())
	assert.Equal(t, "rtsp://cam/3", h.session.URL())
}

func TestSession_PauseResumeKeepsDecoder(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "", "rtsp://cam/1"))
	dec.frames <- fullFrame()
	require.Eventually(t, func() bool { return h.transport.frameCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandPause}))
	assert.True(t, h.session.Paused())
	assert.Equal(t, domain.SessionPaused, h.session.State())

	// a read already in flight may complete, after that nothing is consumed
	dec.frames <- fullFrame()
	dec.frames <- fullFrame()
	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, len(dec.frames), 1)
	assert.LessOrEqual(t, h.transport.frameCount(), 2)

	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandResume}))
	assert.False(t, h.session.Paused())
	assert.Equal(t, domain.SessionRunning, h.session.State())
	require.Eventually(t, func() bool { return h.transport.frameCount() == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.decoders.count())
	assert.False(t, dec.isStopped())
}

func TestSession_MaxPauseStopsRun(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPause = 20 * time.Millisecond
	h := newHarness(t, cfg, noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "", "rtsp://cam/1"))
	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandPause}))
	dec.frames <- fullFrame()

	waitIdle(t, h.session)
	assert.True(t, dec.isStopped())
	assert.False(t, h.session.Paused())
}

func TestSession_StopAndDisconnectAreIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "", ""))
	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandStop}))
	assert.Equal(t, domain.SessionIdle, h.session.State())

	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/1"}))
	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandStop}))
	assert.Equal(t, domain.SessionIdle, h.session.State())
	assert.True(t, dec.isStopped())

	h.session.Disconnect()
	h.session.Disconnect()
	assert.Equal(t, domain.SessionIdle, h.session.State())

	// commands after teardown never start a decoder
	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/2"}))
	assert.Equal(t, 1, h.decoders.count())
}

func TestSession_CloseCommandClosesTransport(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	ctx := context.Background()

	require.NoError(t, h.session.Connect(ctx, "", "rtsp://cam/1"))
	require.NoError(t, h.session.HandleCommand(ctx, domain.Command{Kind: domain.CommandClose}))

	assert.True(t, dec.isStopped())
	assert.True(t, h.transport.closed)
	assert.Equal(t, domain.SessionIdle, h.session.State())
}

func TestSession_DecoderSpawnFailure(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	h.decoders.startErr = errors.New("exec: ffmpeg not found")

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/1"))

	assert.Equal(t, domain.SessionIdle, h.session.State())
	assert.Equal(t, "", h.session.URL())
	assert.Empty(t, h.transport.messagesOfType("error"))
}

func TestSession_TransportFailureEndsRun(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	h.transport.setSendErr(domain.ErrTransport)

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/1"))
	dec.frames <- fullFrame()

	waitIdle(t, h.session)
	assert.True(t, dec.isStopped())
}

func TestSession_SendsPerformanceStats(t *testing.T) {
	cfg := testConfig()
	cfg.StatsEveryFrames = 2
	h := newHarness(t, cfg, noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	for i := 0; i < 4; i++ {
		dec.frames <- fullFrame()
	}
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/1"))
	waitIdle(t, h.session)

	stats := h.transport.messagesOfType("performance_stats")
	require.Len(t, stats, 2)
	body := stats[1]["stats"].(map[string]interface{})
	assert.Equal(t, float64(4), body["total_frames"])
	assert.Equal(t, float64(4), body["total_detections"])
	for _, key := range []string{"current_fps", "avg_processing_time", "avg_detection_time", "uptime"} {
		assert.Contains(t, body, key)
	}
}

func TestSession_RaisesSingleAlertWithinCooldown(t *testing.T) {
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return []domain.DetectionCandidate{
			{Confidence: 0.4, Box: domain.BoundingBox{X: 1, Y: 1, Width: 2, Height: 2}},
			{Confidence: 0.9, Box: domain.BoundingBox{X: 5, Y: 6, Width: 7, Height: 8}},
		}, nil
	})
	publisher := &mockPublisher{}
	published := make(chan *domain.AlertEvent, 4)
	publisher.On("PublishAlert", mock.Anything, mock.AnythingOfType("*domain.AlertEvent")).
		Run(func(args mock.Arguments) { published <- args.Get(1).(*domain.AlertEvent) }).
		Return(nil)

	h := newHarness(t, testConfig(), model, publisher)
	streamID := h.createStream(t)
	dec := h.decoders.add(newFakeDecoder())
	for i := 0; i < 3; i++ {
		dec.frames <- fullFrame()
	}
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), streamID, "rtsp://cam/lobby"))
	waitIdle(t, h.session)

	assert.Equal(t, []domain.BoundingBox{{X: 5, Y: 6, Width: 7, Height: 8}}, h.snapshots.saved())

	alerts := h.transport.messagesOfType("face_alert")
	require.Len(t, alerts, 1)
	assert.Equal(t, 0.9, alerts[0]["confidence"])
	assert.Equal(t, "/media/detections/detection_test.jpg", alerts[0]["snapshot"])
	assert.Len(t, alerts[0]["timestamp"], len("20060102_150405_000000"))

	views, err := h.alerts.ListAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, streamID, views[0].Detection.StreamID)
	assert.Equal(t, 0.9, views[0].Detection.Confidence)
	assert.False(t, views[0].Alert.Viewed)
	assert.False(t, h.session.policy.LastAlert().IsZero())

	select {
	case event := <-published:
		assert.Equal(t, streamID, event.StreamID)
		assert.Equal(t, views[0].Alert.ID, event.AlertID)
		assert.Equal(t, h.session.ID(), event.SessionID)
	case <-time.After(time.Second):
		t.Fatal("alert was not published")
	}
	assert.Equal(t, int64(3), h.session.Stats().TotalDetections)
}

func TestSession_AlertWithoutStreamIsNotRecorded(t *testing.T) {
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return []domain.DetectionCandidate{{Confidence: 0.95}}, nil
	})
	h := newHarness(t, testConfig(), model, nil)
	dec := h.decoders.add(newFakeDecoder())
	dec.frames <- fullFrame()
	dec.frames <- fullFrame()
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/1"))
	waitIdle(t, h.session)

	// nothing to attach the alert to, so no snapshot is written either
	assert.Empty(t, h.snapshots.saved())
	assert.Empty(t, h.transport.messagesOfType("face_alert"))
	assert.True(t, h.session.policy.LastAlert().IsZero())
	assert.Equal(t, 2, h.transport.frameCount())
}

func TestSession_SnapshotFailureSkipsAlert(t *testing.T) {
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return []domain.DetectionCandidate{{Confidence: 0.95}}, nil
	})
	h := newHarness(t, testConfig(), model, nil)
	h.snapshots.err = errors.New("disk full")
	streamID := h.createStream(t)
	dec := h.decoders.add(newFakeDecoder())
	dec.frames <- fullFrame()
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), streamID, "rtsp://cam/1"))
	waitIdle(t, h.session)

	views, err := h.alerts.ListAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Equal(t, 1, h.transport.frameCount())
}

func TestSession_FailedPersistRemovesSnapshot(t *testing.T) {
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return []domain.DetectionCandidate{{Confidence: 0.95, Box: domain.BoundingBox{Width: 2, Height: 2}}}, nil
	})
	dir := t.TempDir()
	snapshots, err := storage.NewSnapshotStore(dir, "/media", 80, zap.NewNop().Sugar())
	require.NoError(t, err)
	metrics := newRecordingMetrics()

	h := newHarness(t, testConfig(), model, nil, func(d *Deps) {
		d.Snapshots = snapshots
		d.Alerts = failingAlerts{}
		d.Metrics = metrics
	})
	streamID := h.createStream(t)
	dec := h.decoders.add(newFakeDecoder())
	dec.frames <- fullFrame()
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), streamID, "rtsp://cam/1"))
	waitIdle(t, h.session)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, metrics.failures("persist"))
	assert.Empty(t, h.transport.messagesOfType("face_alert"))
	assert.True(t, h.session.policy.LastAlert().IsZero())
}

func TestSession_EncodingFailureSkipsFrame(t *testing.T) {
	cfg := testConfig()
	cfg.StatsEveryFrames = 2
	metrics := newRecordingMetrics()
	h := newHarness(t, cfg, noFaces(), nil, func(d *Deps) { d.Metrics = metrics })

	// three bytes can never hold a 4x2 BGR frame
	dec := newFakeDecoder()
	dec.size = 3
	h.decoders.add(dec)
	for i := 0; i < 4; i++ {
		dec.frames <- fullFrame()
	}

	require.NoError(t, h.session.Connect(context.Background(), "", "rtsp://cam/1"))
	require.Eventually(t, func() bool { return metrics.skips("encode") == 4 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.SessionRunning, h.session.State())
	assert.Equal(t, 0, h.transport.frameCount())
	assert.Len(t, h.transport.messagesOfType("performance_stats"), 2)

	close(dec.frames)
	waitIdle(t, h.session)
}

func TestSession_DetectionFailureKeepsRelaying(t *testing.T) {
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		return nil, errors.New("model crashed")
	})
	h := newHarness(t, testConfig(), model, nil)
	streamID := h.createStream(t)
	dec := h.decoders.add(newFakeDecoder())
	for i := 0; i < 3; i++ {
		dec.frames <- fullFrame()
	}
	close(dec.frames)

	require.NoError(t, h.session.Connect(context.Background(), streamID, "rtsp://cam/1"))
	waitIdle(t, h.session)

	assert.Equal(t, 3, h.transport.frameCount())
	assert.Empty(t, h.transport.messagesOfType("face_alert"))
	assert.Empty(t, h.snapshots.saved())
	assert.Equal(t, int64(3), h.session.Stats().TotalDetections)
}

func TestSession_StreamSettingsAndStatus(t *testing.T) {
	calls := 0
	model := modelFunc(func(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
		calls++
		return nil, nil
	})
	h := newHarness(t, testConfig(), model, nil)
	streamID := h.createStream(t)
	_, err := h.streams.ApplyAction(context.Background(), streamID, domain.StreamActionPause)
	require.NoError(t, err)

	dec := h.decoders.add(newFakeDecoder())
	require.NoError(t, h.session.Connect(context.Background(), streamID, "rtsp://cam/lobby"))
	assert.False(t, h.session.DetectionEnabled())
	assert.Equal(t, streamID, h.session.StreamID())

	stream, err := h.streams.GetStream(context.Background(), streamID)
	require.NoError(t, err)
	assert.Equal(t, domain.StreamOnline, stream.Status)
	assert.NotNil(t, stream.LastConnected)

	dec.frames <- fullFrame()
	close(dec.frames)
	waitIdle(t, h.session)
	assert.Zero(t, calls)

	stream, err = h.streams.GetStream(context.Background(), streamID)
	require.NoError(t, err)
	assert.Equal(t, domain.StreamOffline, stream.Status)
}

func TestSession_UsesStreamThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.UseStreamThreshold = true
	h := newHarness(t, cfg, noFaces(), nil)
	streamID := h.createStream(t)

	require.NoError(t, h.session.Connect(context.Background(), streamID, ""))
	require.True(t, h.session.DetectionEnabled())
	assert.Equal(t, domain.DefaultConfidenceThreshold, h.session.detector.Threshold())
}

func TestSession_Serve(t *testing.T) {
	h := newHarness(t, testConfig(), noFaces(), nil)
	dec := h.decoders.add(newFakeDecoder())
	require.NoError(t, h.session.Connect(context.Background(), "", ""))

	done := make(chan error, 1)
	go func() { done <- h.session.Serve(context.Background()) }()

	h.transport.recvErrs <- &domain.UnknownCommandError{Name: "rewind"}
	h.transport.commands <- domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/1"}
	require.Eventually(t, func() bool { return h.session.State() == domain.SessionRunning }, time.Second, 5*time.Millisecond)

	h.transport.recvErrs <- domain.ErrConnectionClosed
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the connection closed")
	}

	assert.True(t, dec.isStopped())
	assert.Equal(t, domain.SessionIdle, h.session.State())
	errs := h.transport.messagesOfType("error")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0]["message"], "rewind")
}
