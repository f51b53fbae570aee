package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/pkg/circuitbreaker"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const maxResponseBytes = 16 << 20

var (
	// ErrWorkerUnavailable is returned when no worker process is attached.
	ErrWorkerUnavailable = errors.New("detection worker unavailable")
	// ErrWorkerTripped is reported by Ping while the breaker is open.
	ErrWorkerTripped = errors.New("detection worker breaker open")
)

type WorkerConfig struct {
	Command         string
	Args            []string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type workerRequest struct {
	FrameData   []byte     `msgpack:"frame_data"`
	Width       int        `msgpack:"width"`
	Height      int        `msgpack:"height"`
	PixelFormat string     `msgpack:"pixel_format"`
	Meta        workerMeta `msgpack:"meta"`
}

type workerMeta struct {
	Seq       uint64 `msgpack:"seq"`
	Timestamp string `msgpack:"timestamp"`
}

type workerResponse struct {
	Detections []workerDetection  `msgpack:"detections"`
	Error      string             `msgpack:"error"`
	Timing     map[string]float64 `msgpack:"timing"`
}

type workerDetection struct {
	Confidence float64   `msgpack:"confidence"`
	Box        []float64 `msgpack:"box"` // x, y, w, h
}

// WorkerModel runs face detection in a long-lived subprocess. Frames are sent
// on stdin and results read from stdout, each message framed by a 4-byte
// big-endian length followed by a msgpack body. One request is in flight at a
// time. A timed out or broken worker is killed and respawned on the next call.
type WorkerModel struct {
	cfg     WorkerConfig
	logger  *zap.SugaredLogger
	breaker *circuitbreaker.CircuitBreaker

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	seq    uint64
	wg     sync.WaitGroup
}

func NewWorkerModel(cfg WorkerConfig, logger *zap.SugaredLogger) *WorkerModel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	w := &WorkerModel{
		cfg:    cfg,
		logger: logger,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerCooldown,
		}),
	}
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("Detection worker breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

// Start spawns the worker process.
func (w *WorkerModel) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawnLocked()
}

// Ping reports the worker unhealthy while repeated failures hold the breaker open.
func (w *WorkerModel) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.breaker.State() == circuitbreaker.StateOpen {
		return ErrWorkerTripped
	}
	return nil
}

// Detect sends frame to the worker and waits for its detections.
func (w *WorkerModel) Detect(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
	var candidates []domain.DetectionCandidate
	err := w.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := w.call(ctx, frame)
		if err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("detection worker: %s", resp.Error)
		}
		candidates = toCandidates(resp.Detections, frame.CapturedAt)
		return nil
	})
	return candidates, err
}

// Close asks the worker to exit by closing its stdin and kills it if it does
// not exit in time.
func (w *WorkerModel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stdin != nil {
		_ = w.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		w.logger.Warnw("Detection worker did not exit, killing")
		w.resetLocked()
		<-done
	}

	w.cmd = nil
	w.stdin = nil
	w.stdout = nil
	return nil
}

func (w *WorkerModel) call(ctx context.Context, frame domain.Frame) (*workerResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stdin == nil {
		if w.cfg.Command == "" {
			return nil, ErrWorkerUnavailable
		}
		if err := w.spawnLocked(); err != nil {
			return nil, err
		}
	}

	w.seq++
	payload, err := msgpack.Marshal(&workerRequest{
		FrameData:   frame.Data,
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: "bgr24",
		Meta: workerMeta{
			Seq:       w.seq,
			Timestamp: frame.CapturedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	type result struct {
		resp *workerResponse
		err  error
	}
	stdin, stdout := w.stdin, w.stdout
	done := make(chan result, 1)
	go func() {
		resp, err := roundTrip(stdin, stdout, payload)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			w.resetLocked()
		}
		return r.resp, r.err
	case <-ctx.Done():
		// the stream is out of sync once a response is abandoned
		w.resetLocked()
		<-done
		return nil, ctx.Err()
	}
}

func roundTrip(stdin io.Writer, stdout io.Reader, payload []byte) (*workerResponse, error) {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := stdin.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to write to stdin: %w", err)
	}

	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(stdout, lengthBuf); err != nil {
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}
	msgLength := binary.BigEndian.Uint32(lengthBuf)
	if msgLength > maxResponseBytes {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", msgLength)
	}

	body := make([]byte, msgLength)
	if _, err := io.ReadFull(stdout, body); err != nil {
		return nil, fmt.Errorf("failed to read msgpack data: %w", err)
	}

	var resp workerResponse
	if err := msgpack.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal msgpack response: %w", err)
	}
	return &resp, nil
}

func (w *WorkerModel) spawnLocked() error {
	if w.cfg.Command == "" {
		return ErrWorkerUnavailable
	}

	cmd := exec.Command(w.cfg.Command, w.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start detection worker: %w", err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.stdout = stdout

	w.logger.Infow("Detection worker spawned",
		"command", w.cfg.Command,
		"pid", cmd.Process.Pid,
	)

	stderrDone := make(chan struct{})
	w.wg.Add(2)
	go w.logStderr(stderr, stderrDone)
	go w.waitProcess(cmd, stderrDone)
	return nil
}

func (w *WorkerModel) resetLocked() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	if w.stdin != nil {
		_ = w.stdin.Close()
	}
	if w.stdout != nil {
		_ = w.stdout.Close()
	}
	w.cmd = nil
	w.stdin = nil
	w.stdout = nil
}

func (w *WorkerModel) logStderr(stderr io.Reader, done chan<- struct{}) {
	defer w.wg.Done()
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			w.logger.Errorw("Detection worker", "worker_line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			w.logger.Warnw("Detection worker", "worker_line", line)
		default:
			w.logger.Debugw("Detection worker", "worker_line", line)
		}
	}
}

// waitProcess reaps the worker. Wait closes the stderr pipe, so it only runs
// once logStderr has read to EOF.
func (w *WorkerModel) waitProcess(cmd *exec.Cmd, stderrDone <-chan struct{}) {
	defer w.wg.Done()

	<-stderrDone
	if err := cmd.Wait(); err != nil {
		w.logger.Debugw("Detection worker exited", "pid", cmd.Process.Pid, "error", err)
		return
	}
	w.logger.Infow("Detection worker exited", "pid", cmd.Process.Pid)
}

func toCandidates(detections []workerDetection, at time.Time) []domain.DetectionCandidate {
	candidates := make([]domain.DetectionCandidate, 0, len(detections))
	for _, d := range detections {
		if len(d.Box) != 4 {
			continue
		}
		candidates = append(candidates, domain.DetectionCandidate{
			Confidence: d.Confidence,
			Box: domain.BoundingBox{
				X:      int(math.Round(d.Box[0])),
				Y:      int(math.Round(d.Box[1])),
				Width:  int(math.Round(d.Box[2])),
				Height: int(math.Round(d.Box[3])),
			},
			FrameTime: at,
		})
	}
	return candidates
}
