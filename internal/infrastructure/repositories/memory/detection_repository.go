package memory

import (
	"context"
	"fmt"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
)

type DetectionRepository struct {
	store *Store
}

func (r *DetectionRepository) Create(ctx context.Context, detection *domain.Detection) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[detection.StreamID]; !ok {
		return domain.ErrStreamNotFound
	}
	if _, exists := s.detections[detection.ID]; exists {
		return fmt.Errorf("detection already exists: %s", detection.ID)
	}
	s.detections[detection.ID] = *detection
	return nil
}

func (r *DetectionRepository) GetByID(ctx context.Context, id domain.DetectionID) (*domain.Detection, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	detection, ok := s.detections[id]
	if !ok {
		return nil, domain.ErrDetectionNotFound
	}
	return &detection, nil
}

func (r *DetectionRepository) Update(ctx context.Context, detection *domain.Detection) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.detections[detection.ID]; !ok {
		return domain.ErrDetectionNotFound
	}
	if _, ok := s.streams[detection.StreamID]; !ok {
		return domain.ErrStreamNotFound
	}
	s.detections[detection.ID] = *detection
	return nil
}

func (r *DetectionRepository) Delete(ctx context.Context, id domain.DetectionID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.detections[id]; !ok {
		return domain.ErrDetectionNotFound
	}
	s.deleteDetectionLocked(id)
	return nil
}

func (r *DetectionRepository) List(ctx context.Context, filter ports.DetectionFilter) ([]*domain.Detection, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	detections := make([]*domain.Detection, 0, len(s.detections))
	for _, detection := range s.detections {
		if filter.StreamID != "" && detection.StreamID != filter.StreamID {
			continue
		}
		detection := detection
		detections = append(detections, &detection)
	}
	sortDetections(detections)
	if filter.Limit > 0 && len(detections) > filter.Limit {
		detections = detections[:filter.Limit]
	}
	return detections, nil
}
