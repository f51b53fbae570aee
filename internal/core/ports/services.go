package ports

import (
	"context"

	"camwatch/internal/core/domain"
)

type StreamService interface {
	CreateStream(ctx context.Context, name, description, rtspURL string) (*domain.Stream, error)
	GetStream(ctx context.Context, id domain.StreamID) (*domain.Stream, error)
	ListStreams(ctx context.Context) ([]*domain.Stream, error)
	ApplyAction(ctx context.Context, id domain.StreamID, action domain.StreamAction) (*domain.Stream, error)
	SetThreshold(ctx context.Context, id domain.StreamID, threshold float64) (*domain.Stream, error)
	DeleteStream(ctx context.Context, id domain.StreamID) error
	MarkOnline(ctx context.Context, id domain.StreamID) error
	MarkOffline(ctx context.Context, id domain.StreamID) error
}

type AlertService interface {
	// RaiseAlert persists a Detection and its Alert as one unit.
	RaiseAlert(ctx context.Context, streamID domain.StreamID, confidence float64, imagePath string) (*domain.Detection, *domain.Alert, error)
	ListAlerts(ctx context.Context) ([]*domain.AlertView, error)
	GetAlert(ctx context.Context, id domain.AlertID) (*domain.AlertView, error)
	SetViewed(ctx context.Context, id domain.AlertID, viewed bool) (*domain.AlertView, error)
	DeleteAlert(ctx context.Context, id domain.AlertID) error
}

// DetectionUpdate carries the fields of a partial update; nil means unchanged.
type DetectionUpdate struct {
	StreamID   *domain.StreamID
	Confidence *float64
	ImagePath  *string
}

type DetectionService interface {
	CreateDetection(ctx context.Context, streamID domain.StreamID, confidence float64, imagePath string) (*domain.Detection, error)
	GetDetection(ctx context.Context, id domain.DetectionID) (*domain.Detection, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]*domain.Detection, error)
	UpdateDetection(ctx context.Context, id domain.DetectionID, update DetectionUpdate) (*domain.Detection, error)
	DeleteDetection(ctx context.Context, id domain.DetectionID) error
}
