package session

import (
	"context"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"

	"go.uber.org/zap"
)

// FaceDetector applies a per-session confidence threshold to a shared model.
type FaceDetector struct {
	model     ports.FaceModel
	threshold float64
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

func NewFaceDetector(model ports.FaceModel, threshold float64, timeout time.Duration, logger *zap.SugaredLogger) *FaceDetector {
	return &FaceDetector{
		model:     model,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
	}
}

func (d *FaceDetector) Threshold() float64 {
	return d.threshold
}

// Detect returns candidates at or above the threshold in model order. Model
// failures are logged and reported as no candidates together with the error.
func (d *FaceDetector) Detect(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	raw, err := d.model.Detect(ctx, frame)
	if err != nil {
		d.logger.Warnw("Face detection failed", "error", err)
		return nil, err
	}

	out := raw[:0:0]
	for _, c := range raw {
		if c.Confidence >= d.threshold {
			out = append(out, c)
		}
	}
	return out, nil
}
