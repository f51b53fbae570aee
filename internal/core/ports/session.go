package ports

import (
	"context"
	"time"

	"camwatch/internal/core/domain"
)

// SessionTransport is the bidirectional client channel owned by one session.
type SessionTransport interface {
	// ReceiveCommand blocks for the next command. It returns
	// domain.ErrConnectionClosed once the peer is gone and
	// *domain.UnknownCommandError for unparseable input.
	ReceiveCommand(ctx context.Context) (domain.Command, error)
	SendBinary(ctx context.Context, data []byte) error
	SendJSON(ctx context.Context, v interface{}) error
	Close() error
}

// FrameDecoder is an external decode process producing raw frames.
type FrameDecoder interface {
	Start(ctx context.Context, url string) error
	// ReadFrame fills buf completely or returns an end-of-stream error.
	ReadFrame(buf []byte) (int, error)
	// ReadErrorLine returns the next diagnostic line, or io.EOF.
	ReadErrorLine() (string, error)
	// Stop kills the process and releases its pipes. Safe to call repeatedly.
	Stop() error
	FrameSize() int
}

// DecoderFactory builds a fresh decoder for each run.
type DecoderFactory func() FrameDecoder

// FaceModel is a shared, read-only face detector.
type FaceModel interface {
	Detect(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error)
}

// SnapshotStore persists annotated detection images.
type SnapshotStore interface {
	// Save writes the frame with box drawn on it and returns the stored path.
	Save(ctx context.Context, frame domain.Frame, box domain.BoundingBox, at time.Time) (string, error)
	// URL maps a stored path to the address clients fetch it from.
	URL(path string) string
	// Remove deletes a stored snapshot. Removing a missing one is not an error.
	Remove(ctx context.Context, path string) error
}

// AlertPublisher fans alerts out to external consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event *domain.AlertEvent) error
}

// SessionMetrics receives per-session pipeline observations.
type SessionMetrics interface {
	SessionOpened()
	SessionClosed()
	DecoderStarted()
	DecoderStopped(reason string)
	FrameRelayed(bytes int, processing time.Duration)
	FrameSkipped(reason string)
	DetectionObserved(duration time.Duration, candidates int, err error)
	AlertRaised(streamID domain.StreamID)
	AlertFailed(stage string)
}
