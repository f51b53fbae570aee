package services

import (
	"context"
	"fmt"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/utils"
)

type alertService struct {
	streamRepo    ports.StreamRepository
	detectionRepo ports.DetectionRepository
	alertRepo     ports.AlertRepository
	now           func() time.Time
}

func NewAlertService(
	streamRepo ports.StreamRepository,
	detectionRepo ports.DetectionRepository,
	alertRepo ports.AlertRepository,
) ports.AlertService {
	return &alertService{
		streamRepo:    streamRepo,
		detectionRepo: detectionRepo,
		alertRepo:     alertRepo,
		now:           time.Now,
	}
}

// RaiseAlert requires an existing stream; a detection is never stored without one.
func (s *alertService) RaiseAlert(ctx context.Context, streamID domain.StreamID, confidence float64, imagePath string) (*domain.Detection, *domain.Alert, error) {
	if streamID == "" {
		return nil, nil, domain.ErrStreamNotFound
	}
	if _, err := s.streamRepo.GetByID(ctx, streamID); err != nil {
		return nil, nil, err
	}

	now := s.now()
	detection := &domain.Detection{
		ID:         domain.DetectionID(utils.NewDetectionID()),
		StreamID:   streamID,
		Confidence: confidence,
		ImagePath:  imagePath,
		CreatedAt:  now,
	}
	if err := s.detectionRepo.Create(ctx, detection); err != nil {
		return nil, nil, fmt.Errorf("failed to create detection: %w", err)
	}

	alert := &domain.Alert{
		ID:          domain.AlertID(utils.NewAlertID()),
		DetectionID: detection.ID,
		CreatedAt:   now,
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		// keep the store free of detections without their alert
		_ = s.detectionRepo.Delete(ctx, detection.ID)
		return nil, nil, fmt.Errorf("failed to create alert: %w", err)
	}

	return detection, alert, nil
}

func (s *alertService) ListAlerts(ctx context.Context) ([]*domain.AlertView, error) {
	alerts, err := s.alertRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.AlertView, 0, len(alerts))
	for _, alert := range alerts {
		view, err := s.join(ctx, alert)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *alertService) GetAlert(ctx context.Context, id domain.AlertID) (*domain.AlertView, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, alert)
}

func (s *alertService) SetViewed(ctx context.Context, id domain.AlertID, viewed bool) (*domain.AlertView, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	alert.Viewed = viewed
	if err := s.alertRepo.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return s.join(ctx, alert)
}

func (s *alertService) DeleteAlert(ctx context.Context, id domain.AlertID) error {
	return s.alertRepo.Delete(ctx, id)
}

func (s *alertService) join(ctx context.Context, alert *domain.Alert) (*domain.AlertView, error) {
	detection, err := s.detectionRepo.GetByID(ctx, alert.DetectionID)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", alert.ID, err)
	}
	return &domain.AlertView{Alert: alert, Detection: detection}, nil
}
