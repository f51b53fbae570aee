package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/pkg/utils"
)

type streamService struct {
	streamRepo ports.StreamRepository
	now        func() time.Time
}

func NewStreamService(streamRepo ports.StreamRepository) ports.StreamService {
	return &streamService{
		streamRepo: streamRepo,
		now:        time.Now,
	}
}

func (s *streamService) CreateStream(ctx context.Context, name, description, rtspURL string) (*domain.Stream, error) {
	name = strings.TrimSpace(name)
	rtspURL = strings.TrimSpace(rtspURL)
	if name == "" || rtspURL == "" {
		return nil, fmt.Errorf("%w: name and rtsp_url are required", domain.ErrInvalidInput)
	}

	stream := domain.NewStream(name, description, rtspURL)
	stream.ID = domain.StreamID(utils.NewStreamID())
	stream.CreatedAt = s.now()

	if err := s.streamRepo.Create(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return stream, nil
}

func (s *streamService) GetStream(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	return s.streamRepo.GetByID(ctx, id)
}

func (s *streamService) ListStreams(ctx context.Context) ([]*domain.Stream, error) {
	return s.streamRepo.List(ctx)
}

func (s *streamService) ApplyAction(ctx context.Context, id domain.StreamID, action domain.StreamAction) (*domain.Stream, error) {
	stream, err := s.streamRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stream.Apply(action) {
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
	}
	if err := s.streamRepo.Update(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to update stream: %w", err)
	}
	return stream, nil
}

// SetThreshold changes the per-stream confidence threshold.
func (s *streamService) SetThreshold(ctx context.Context, id domain.StreamID, threshold float64) (*domain.Stream, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: confidence_threshold must be in [0,1]", domain.ErrInvalidInput)
	}
	stream, err := s.streamRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stream.ConfidenceThreshold = threshold
	if err := s.streamRepo.Update(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to update stream: %w", err)
	}
	return stream, nil
}

func (s *streamService) DeleteStream(ctx context.Context, id domain.StreamID) error {
	return s.streamRepo.Delete(ctx, id)
}

func (s *streamService) MarkOnline(ctx context.Context, id domain.StreamID) error {
	return s.setStatus(ctx, id, domain.StreamOnline)
}

func (s *streamService) MarkOffline(ctx context.Context, id domain.StreamID) error {
	return s.setStatus(ctx, id, domain.StreamOffline)
}

func (s *streamService) setStatus(ctx context.Context, id domain.StreamID, status domain.StreamStatus) error {
	stream, err := s.streamRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	stream.Status = status
	if status == domain.StreamOnline {
		now := s.now()
		stream.LastConnected = &now
	}
	if err := s.streamRepo.Update(ctx, stream); err != nil {
		return fmt.Errorf("failed to update stream status: %w", err)
	}
	return nil
}
