package detector

import (
	"context"

	"camwatch/internal/core/domain"
)

// NoopModel never detects anything. It stands in when no worker is configured.
type NoopModel struct{}

func (NoopModel) Detect(ctx context.Context, frame domain.Frame) ([]domain.DetectionCandidate, error) {
	return nil, ctx.Err()
}
