package ports

import (
	"context"

	"camwatch/internal/core/domain"
)

type StreamRepository interface {
	Create(ctx context.Context, stream *domain.Stream) error
	GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error)
	Update(ctx context.Context, stream *domain.Stream) error
	Delete(ctx context.Context, id domain.StreamID) error
	List(ctx context.Context) ([]*domain.Stream, error)
}

// DetectionFilter narrows List; zero values match everything.
type DetectionFilter struct {
	StreamID domain.StreamID
	Limit    int
}

type DetectionRepository interface {
	Create(ctx context.Context, detection *domain.Detection) error
	GetByID(ctx context.Context, id domain.DetectionID) (*domain.Detection, error)
	Update(ctx context.Context, detection *domain.Detection) error
	Delete(ctx context.Context, id domain.DetectionID) error
	// List returns detections newest first.
	List(ctx context.Context, filter DetectionFilter) ([]*domain.Detection, error)
}

type AlertRepository interface {
	// Create fails with domain.ErrAlertExists when the detection already has an alert.
	Create(ctx context.Context, alert *domain.Alert) error
	GetByID(ctx context.Context, id domain.AlertID) (*domain.Alert, error)
	Update(ctx context.Context, alert *domain.Alert) error
	Delete(ctx context.Context, id domain.AlertID) error
	// List returns alerts newest first.
	List(ctx context.Context) ([]*domain.Alert, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
