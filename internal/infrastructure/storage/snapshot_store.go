package storage

import (
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/pkg/imaging"

	"go.uber.org/zap"
)

const boxThickness = 2

// SnapshotStore writes annotated detection snapshots to a local directory that
// is served over HTTP under mediaURL.
type SnapshotStore struct {
	dir      string
	mediaURL string
	quality  int
	logger   *zap.SugaredLogger
}

func NewSnapshotStore(dir, mediaURL string, quality int, logger *zap.SugaredLogger) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotStore{
		dir:      dir,
		mediaURL: strings.TrimRight(mediaURL, "/"),
		quality:  quality,
		logger:   logger,
	}, nil
}

// Dir is the directory snapshots are written to.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// Save draws box on a copy of frame and writes it as
// detection_YYYYmmdd_HHMMSS_ffffff.jpg. It returns the file name.
func (s *SnapshotStore) Save(ctx context.Context, frame domain.Frame, box domain.BoundingBox, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.BGRToRGBA(nil, frame.Data, frame.Width, frame.Height)
	if err != nil {
		return "", fmt.Errorf("convert snapshot: %w", err)
	}
	imaging.DrawRect(img, image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height), imaging.Green, boxThickness)

	name := SnapshotName(at)
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.EncodeJPEG(tmp, img, s.quality); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}

	s.logger.Debugw("Snapshot saved", "file", name)
	return name, nil
}

// URL maps a stored file name to the address clients fetch it from.
func (s *SnapshotStore) URL(name string) string {
	if name == "" {
		return ""
	}
	return s.mediaURL + "/" + path.Base(filepath.ToSlash(name))
}

// Remove deletes a stored snapshot. A file that is already gone is ignored.
func (s *SnapshotStore) Remove(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.dir, path.Base(filepath.ToSlash(name)))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	s.logger.Debugw("Snapshot removed", "file", name)
	return nil
}

// SnapshotName formats at with microsecond precision.
func SnapshotName(at time.Time) string {
	return fmt.Sprintf("detection_%s_%06d.jpg", at.Format("20060102_150405"), at.Nanosecond()/int(time.Microsecond))
}
