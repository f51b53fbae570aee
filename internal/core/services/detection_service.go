package services

import (
	"context"
	"fmt"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/utils"
)

type detectionService struct {
	streamRepo    ports.StreamRepository
	detectionRepo ports.DetectionRepository
	now           func() time.Time
}

func NewDetectionService(streamRepo ports.StreamRepository, detectionRepo ports.DetectionRepository) ports.DetectionService {
	return &detectionService{
		streamRepo:    streamRepo,
		detectionRepo: detectionRepo,
		now:           time.Now,
	}
}

func (s *detectionService) CreateDetection(ctx context.Context, streamID domain.StreamID, confidence float64, imagePath string) (*domain.Detection, error) {
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence_score must be between 0 and 1", domain.ErrInvalidInput)
	}
	if _, err := s.streamRepo.GetByID(ctx, streamID); err != nil {
		return nil, err
	}

	detection := &domain.Detection{
		ID:         domain.DetectionID(utils.NewDetectionID()),
		StreamID:   streamID,
		Confidence: confidence,
		ImagePath:  imagePath,
		CreatedAt:  s.now(),
	}
	if err := s.detectionRepo.Create(ctx, detection); err != nil {
		return nil, fmt.Errorf("failed to create detection: %w", err)
	}
	return detection, nil
}

func (s *detectionService) GetDetection(ctx context.Context, id domain.DetectionID) (*domain.Detection, error) {
	return s.detectionRepo.GetByID(ctx, id)
}

func (s *detectionService) ListDetections(ctx context.Context, filter ports.DetectionFilter) ([]*domain.Detection, error) {
	return s.detectionRepo.List(ctx, filter)
}

func (s *detectionService) UpdateDetection(ctx context.Context, id domain.DetectionID, update ports.DetectionUpdate) (*domain.Detection, error) {
	detection, err := s.detectionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.StreamID != nil {
		if _, err := s.streamRepo.GetByID(ctx, *update.StreamID); err != nil {
			return nil, err
		}
		detection.StreamID = *update.StreamID
	}
	if update.Confidence != nil {
		if *update.Confidence < 0 || *update.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence_score must be between 0 and 1", domain.ErrInvalidInput)
		}
		detection.Confidence = *update.Confidence
	}
	if update.ImagePath != nil {
		detection.ImagePath = *update.ImagePath
	}

	if err := s.detectionRepo.Update(ctx, detection); err != nil {
		return nil, fmt.Errorf("failed to update detection: %w", err)
	}
	return detection, nil
}

func (s *detectionService) DeleteDetection(ctx context.Context, id domain.DetectionID) error {
	return s.detectionRepo.Delete(ctx, id)
}
