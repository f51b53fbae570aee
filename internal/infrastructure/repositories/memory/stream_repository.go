package memory

import (
	"context"
	"fmt"

	"camwatch/internal/core/domain"
)

type StreamRepository struct {
	store *Store
}

func (r *StreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[stream.ID]; exists {
		return fmt.Errorf("stream already exists: %s", stream.ID)
	}
	s.streams[stream.ID] = *stream
	return nil
}

func (r *StreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.streams[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}
	return &stream, nil
}

func (r *StreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[stream.ID]; !exists {
		return domain.ErrStreamNotFound
	}
	s.streams[stream.ID] = *stream
	return nil
}

// Delete removes the stream together with its detections and their alerts.
func (r *StreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[id]; !exists {
		return domain.ErrStreamNotFound
	}
	for detID, det := range s.detections {
		if det.StreamID == id {
			s.deleteDetectionLocked(detID)
		}
	}
	delete(s.streams, id)
	return nil
}

func (r *StreamRepository) List(ctx context.Context) ([]*domain.Stream, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	streams := make([]*domain.Stream, 0, len(s.streams))
	for _, stream := range s.streams {
		stream := stream
		streams = append(streams, &stream)
	}
	sortStreams(streams)
	return streams, nil
}
