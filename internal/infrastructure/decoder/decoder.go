package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEndOfStream is returned by ReadFrame when the process produced a
	// short or empty read, exited, or was stopped.
	ErrEndOfStream = errors.New("decoder end of stream")
)

// ProcessSpawnError reports that the decode program could not be launched.
type ProcessSpawnError struct {
	Binary string
	Err    error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error {
	return e.Err
}

// State is the lifecycle of one decoder process.
type State int

const (
	NotStarted State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Config struct {
	Binary    string
	Width     int
	Height    int
	StopGrace time.Duration
}

// Decoder runs ffmpeg in its own process group and exposes its raw BGR24
// output one frame at a time.
type Decoder struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	lines  *bufio.Reader
}

func New(cfg Config, logger *zap.SugaredLogger) *Decoder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	return &Decoder{cfg: cfg, logger: logger}
}

// Args is the ffmpeg argument list for url.
func (d *Decoder) Args(url string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-flush_packets", "1",
		"-avioflags", "direct",
		"-analyzeduration", "10000000",
		"-probesize", "10000000",
		"-i", url,
		"-vf", "scale=" + strconv.Itoa(d.cfg.Width) + ":" + strconv.Itoa(d.cfg.Height),
		"-f", "image2pipe",
		"-pix_fmt", "bgr24",
		"-vcodec", "rawvideo",
		"-",
	}
}

// FrameSize is the byte length of one frame.
func (d *Decoder) FrameSize() int {
	return d.cfg.Width * d.cfg.Height * 3
}

// Start launches the decoder for url. A process left over from a previous
// Start is stopped first.
func (d *Decoder) Start(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Running {
		d.stopLocked()
	}

	cmd := exec.Command(d.cfg.Binary, d.Args(url)...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessSpawnError{Binary: d.cfg.Binary, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ProcessSpawnError{Binary: d.cfg.Binary, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessSpawnError{Binary: d.cfg.Binary, Err: err}
	}

	d.cmd = cmd
	d.stdout = stdout
	d.stderr = stderr
	d.lines = bufio.NewReader(stderr)
	d.state = Running

	d.logger.Infow("Decoder started",
		"pid", cmd.Process.Pid,
		"rtsp_url", url,
	)
	return nil
}

// ReadFrame fills buf completely. Anything less is ErrEndOfStream.
func (d *Decoder) ReadFrame(buf []byte) (int, error) {
	d.mu.Lock()
	stdout := d.stdout
	d.mu.Unlock()

	if stdout == nil {
		return 0, ErrEndOfStream
	}

	n, err := io.ReadFull(stdout, buf)
	if err != nil {
		return n, fmt.Errorf("%w: read %d of %d bytes: %v", ErrEndOfStream, n, len(buf), err)
	}
	return n, nil
}

// ReadErrorLine returns the next diagnostic line without its newline, or io.EOF.
func (d *Decoder) ReadErrorLine() (string, error) {
	d.mu.Lock()
	lines := d.lines
	d.mu.Unlock()

	if lines == nil {
		return "", io.EOF
	}

	line, err := lines.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil && line == "" {
		return "", io.EOF
	}
	return line, nil
}

func (d *Decoder) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop kills the process group and releases both pipes. Calling it on a
// decoder that is not running is a no-op.
func (d *Decoder) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

func (d *Decoder) stopLocked() {
	if d.state != Running {
		return
	}

	cmd := d.cmd
	pid := cmd.Process.Pid
	if err := killProcessGroup(cmd); err != nil {
		d.logger.Debugw("Failed to kill decoder", "pid", pid, "error", err)
	}

	// closing an already closed pipe is not an error here
	_ = d.stdout.Close()
	_ = d.stderr.Close()

	d.cmd = nil
	d.stdout = nil
	d.stderr = nil
	d.lines = nil
	d.state = Terminated

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	if d.cfg.StopGrace > 0 {
		select {
		case <-done:
		case <-time.After(d.cfg.StopGrace):
			d.logger.Warnw("Decoder not reaped within grace period", "pid", pid)
		}
	}

	d.logger.Infow("Decoder stopped", "pid", pid)
}

// CheckInstallation verifies that binary is installed and runnable.
func CheckInstallation(ctx context.Context, binary string) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s is not installed or not in PATH: %w", binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		return fmt.Errorf("%s -version failed: %w", binary, err)
	}
	return nil
}
