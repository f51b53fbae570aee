package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/config"
	"camwatch/pkg/optimize"
	"camwatch/pkg/utils"

	"go.uber.org/zap"
)

// Config holds the per-session tunables.
type Config struct {
	FrameWidth        int
	FrameHeight       int
	IdleInterval      time.Duration
	MaxPause          time.Duration
	ReadTimeout       time.Duration
	StatsEveryFrames  int
	StatsWindow       int
	JPEGQuality       int
	DetectionEnabled  bool
	DetectionInterval time.Duration
	Threshold         float64
	// UseStreamThreshold replaces Threshold with the stream's own threshold
	// when the session is bound to a registered stream.
	UseStreamThreshold bool
	Cooldown           time.Duration
	DetectionTimeout   time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FrameWidth:         cfg.Decoder.Width,
		FrameHeight:        cfg.Decoder.Height,
		IdleInterval:       cfg.Stream.IdleInterval,
		MaxPause:           cfg.Stream.MaxPause,
		ReadTimeout:        cfg.Decoder.ReadTimeout,
		StatsEveryFrames:   cfg.Stream.StatsEveryFrames,
		StatsWindow:        cfg.Stream.StatsWindow,
		JPEGQuality:        cfg.Stream.JPEGQuality,
		DetectionEnabled:   cfg.Detection.Enabled,
		DetectionInterval:  cfg.Detection.Interval,
		Threshold:          cfg.Detection.Threshold,
		UseStreamThreshold: cfg.Detection.UseStreamThreshold,
		Cooldown:           cfg.Detection.Cooldown,
		DetectionTimeout:   cfg.Detection.Timeout,
	}
}

// Deps are the collaborators a session is built from. Publisher and Metrics
// are optional.
type Deps struct {
	Transport  ports.SessionTransport
	NewDecoder ports.DecoderFactory
	Model      ports.FaceModel
	Streams    ports.StreamService
	Alerts     ports.AlertService
	Snapshots  ports.SnapshotStore
	Publisher  ports.AlertPublisher
	Metrics    ports.SessionMetrics
	Buffers    *optimize.BufferPool
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type statsMessage struct {
	Type  string                  `json:"type"`
	Stats domain.PerformanceStats `json:"stats"`
}

// run is one decode and relay cycle started by a Start command.
type run struct {
	decoder ports.FrameDecoder
	url     string
	cancel  context.CancelFunc
	done    chan struct{}
}

// StreamSession relays one client's camera feed and runs detection on it.
// Commands are serialized; the frame loop runs on its own goroutine.
type StreamSession struct {
	id     string
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time

	transport  ports.SessionTransport
	newDecoder ports.DecoderFactory
	model      ports.FaceModel
	streams    ports.StreamService
	alerts     ports.AlertService
	snapshots  ports.SnapshotStore
	publisher  ports.AlertPublisher
	metrics    ports.SessionMetrics
	buffers    *optimize.BufferPool

	perf   *PerformanceMonitor
	policy *AlertPolicy

	ctx    context.Context
	cancel context.CancelFunc

	cmdMu  sync.Mutex
	paused atomic.Bool

	mu            sync.Mutex
	state         domain.SessionState
	streamID      domain.StreamID
	detector      *FaceDetector
	current       *run
	closed        bool
	lastDetection time.Time

	background sync.WaitGroup
}

func New(cfg Config, deps Deps) *StreamSession {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	buffers := deps.Buffers
	if buffers == nil {
		buffers = optimize.NewBufferPool(64 << 10)
	}

	id := utils.NewSessionID()
	ctx, cancel := context.WithCancel(context.Background())

	return &StreamSession{
		id:         id,
		cfg:        cfg,
		logger:     deps.Logger.With("session_id", id),
		now:        now,
		transport:  deps.Transport,
		newDecoder: deps.NewDecoder,
		model:      deps.Model,
		streams:    deps.Streams,
		alerts:     deps.Alerts,
		snapshots:  deps.Snapshots,
		publisher:  deps.Publisher,
		metrics:    metrics,
		buffers:    buffers,
		perf:       NewPerformanceMonitor(cfg.StatsWindow, now),
		policy:     NewAlertPolicy(cfg.Cooldown),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *StreamSession) ID() string { return s.id }

func (s *StreamSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StreamSession) Paused() bool { return s.paused.Load() }

func (s *StreamSession) StreamID() domain.StreamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// URL is the source of the active run, or empty when idle.
func (s *StreamSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.url
}

func (s *StreamSession) Stats() domain.PerformanceStats {
	return s.perf.Snapshot()
}

// DetectionEnabled reports whether frames are handed to the face detector.
func (s *StreamSession) DetectionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector != nil
}

// Connect binds the session to an optional stream and starts relaying url
// when one is given.
func (s *StreamSession) Connect(ctx context.Context, streamID domain.StreamID, url string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.metrics.SessionOpened()

	enabled := s.cfg.DetectionEnabled && s.model != nil
	threshold := s.cfg.Threshold

	if streamID != "" && s.streams != nil {
		stream, err := s.streams.GetStream(ctx, streamID)
		switch {
		case err == nil:
			if !stream.DetectionEnabled {
				enabled = false
			}
			if s.cfg.UseStreamThreshold {
				threshold = stream.ConfidenceThreshold
			}
		case errors.Is(err, domain.ErrStreamNotFound):
			s.logger.Warnw("Session bound to unknown stream", "stream_id", streamID)
		default:
			s.logger.Warnw("Failed to load stream", "stream_id", streamID, "error", err)
		}
	}

	s.mu.Lock()
	s.streamID = streamID
	if enabled {
		s.detector = NewFaceDetector(s.model, threshold, s.cfg.DetectionTimeout, s.logger)
	}
	s.mu.Unlock()

	s.logger.Infow("Session connected",
		"stream_id", streamID,
		"detection_enabled", enabled,
		"threshold", threshold,
	)

	if url == "" {
		return nil
	}
	return s.start(ctx, url)
}

// HandleCommand applies one client command.
func (s *StreamSession) HandleCommand(ctx context.Context, cmd domain.Command) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	switch cmd.Kind {
	case domain.CommandStart:
		if cmd.URL == "" {
			return s.sendError(ctx, domain.ErrMissingURL.Error())
		}
		return s.start(ctx, cmd.URL)

	case domain.CommandPause:
		s.paused.Store(true)
		s.setStateIf(domain.SessionRunning, domain.SessionPaused)
		s.logger.Infow("Stream paused")

	case domain.CommandResume:
		s.paused.Store(false)
		s.setStateIf(domain.SessionPaused, domain.SessionRunning)
		s.logger.Infow("Stream resumed")

	case domain.CommandStop:
		s.stopRun()

	case domain.CommandClose:
		s.shutdown()
		return s.transport.Close()

	default:
		return &domain.UnknownCommandError{Name: string(cmd.Kind)}
	}
	return nil
}

// Disconnect tears the session down. It is safe to call any number of times.
func (s *StreamSession) Disconnect() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.shutdown()
}

// Serve reads commands from the transport until the client goes away.
func (s *StreamSession) Serve(ctx context.Context) error {
	defer s.Disconnect()

	for {
		cmd, err := s.transport.ReceiveCommand(ctx)
		if err != nil {
			var unknown *domain.UnknownCommandError
			switch {
			case errors.As(err, &unknown):
				s.logger.Debugw("Ignoring unknown command", "command", unknown.Name)
				if sendErr := s.sendError(ctx, unknown.Error()); sendErr != nil {
					return nil
				}
				continue
			case errors.Is(err, domain.ErrConnectionClosed), ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}

		if err := s.HandleCommand(ctx, cmd); err != nil {
			if cmd.Kind == domain.CommandClose {
				return nil
			}
			s.logger.Warnw("Command failed", "command", cmd.Kind, "error", err)
		}
		if cmd.Kind == domain.CommandClose {
			return nil
		}
	}
}

// start replaces any active run with a new one for url. Callers hold cmdMu.
func (s *StreamSession) start(ctx context.Context, url string) error {
	s.stopRun()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	dec := s.newDecoder()
	runCtx, cancel := context.WithCancel(s.ctx)
	if err := dec.Start(runCtx, url); err != nil {
		cancel()
		// the client is not told; it simply receives no frames
		s.logger.Errorw("Failed to start decoder", "rtsp_url", url, "error", err)
		return nil
	}
	s.metrics.DecoderStarted()

	r := &run{
		decoder: dec,
		url:     url,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.paused.Store(false)
	s.mu.Lock()
	s.current = r
	s.state = domain.SessionRunning
	s.mu.Unlock()

	s.markOnline(ctx)
	s.logger.Infow("Stream started", "rtsp_url", url)

	go s.frameLoop(runCtx, r)
	return nil
}

// stopRun ends the active run and waits for its loop to finish.
func (s *StreamSession) stopRun() {
	s.mu.Lock()
	r := s.current
	if r != nil {
		s.state = domain.SessionStopping
	}
	s.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	if err := r.decoder.Stop(); err != nil {
		s.logger.Debugw("Decoder stop failed", "error", err)
	}
	<-r.done
}

// shutdown is the teardown shared by Close and Disconnect. Callers hold cmdMu.
func (s *StreamSession) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopRun()
	s.cancel()
	s.background.Wait()
	s.metrics.SessionClosed()
	s.logger.Infow("Session closed")
}

// finishRun releases everything a run holds. It runs on the frame loop goroutine.
func (s *StreamSession) finishRun(r *run, stderrDone <-chan struct{}, reason string) {
	r.cancel()
	if err := r.decoder.Stop(); err != nil {
		s.logger.Debugw("Decoder stop failed", "error", err)
	}
	<-stderrDone

	s.mu.Lock()
	current := s.current == r
	if current {
		s.current = nil
		s.state = domain.SessionIdle
	}
	s.mu.Unlock()

	s.paused.Store(false)
	s.metrics.DecoderStopped(reason)
	if current {
		s.markOffline()
	}
	s.logger.Infow("Stream stopped", "rtsp_url", r.url, "reason", reason)
	close(r.done)
}

func (s *StreamSession) setStateIf(from, to domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == from {
		s.state = to
	}
}

func (s *StreamSession) sendError(ctx context.Context, message string) error {
	return s.transport.SendJSON(ctx, errorMessage{Type: "error", Message: message})
}

func (s *StreamSession) markOnline(ctx context.Context) {
	streamID := s.StreamID()
	if streamID == "" || s.streams == nil {
		return
	}
	if err := s.streams.MarkOnline(ctx, streamID); err != nil {
		s.logger.Warnw("Failed to mark stream online", "stream_id", streamID, "error", err)
	}
}

func (s *StreamSession) markOffline() {
	streamID := s.StreamID()
	if streamID == "" || s.streams == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.streams.MarkOffline(ctx, streamID); err != nil {
		s.logger.Warnw("Failed to mark stream offline", "stream_id", streamID, "error", err)
	}
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                              {}
func (nopMetrics) SessionClosed()                              {}
func (nopMetrics) DecoderStarted()                             {}
func (nopMetrics) DecoderStopped(string)                       {}
func (nopMetrics) FrameRelayed(int, time.Duration)             {}
func (nopMetrics) FrameSkipped(string)                         {}
func (nopMetrics) DetectionObserved(time.Duration, int, error) {}
func (nopMetrics) AlertRaised(domain.StreamID)                 {}
func (nopMetrics) AlertFailed(string)                          {}
