package memory

import (
	"sort"
	"sync"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
)

// Store keeps every record type behind one lock so that deletes can cascade
// from streams to detections to alerts. Records are copied on the way in and
// out; callers never share pointers with the store.
type Store struct {
	mu sync.RWMutex

	streams         map[domain.StreamID]domain.Stream
	detections      map[domain.DetectionID]domain.Detection
	alerts          map[domain.AlertID]domain.Alert
	alertByDetector map[domain.DetectionID]domain.AlertID
	users           map[domain.UserID]domain.User
	userByName      map[string]domain.UserID
}

func NewStore() *Store {
	return &Store{
		streams:         make(map[domain.StreamID]domain.Stream),
		detections:      make(map[domain.DetectionID]domain.Detection),
		alerts:          make(map[domain.AlertID]domain.Alert),
		alertByDetector: make(map[domain.DetectionID]domain.AlertID),
		users:           make(map[domain.UserID]domain.User),
		userByName:      make(map[string]domain.UserID),
	}
}

func (s *Store) Streams() ports.StreamRepository {
	return &StreamRepository{store: s}
}

func (s *Store) Detections() ports.DetectionRepository {
	return &DetectionRepository{store: s}
}

func (s *Store) Alerts() ports.AlertRepository {
	return &AlertRepository{store: s}
}

func (s *Store) Users() ports.UserRepository {
	return &UserRepository{store: s}
}

// deleteDetectionLocked removes a detection and its alert. Caller holds mu.
func (s *Store) deleteDetectionLocked(id domain.DetectionID) {
	if alertID, ok := s.alertByDetector[id]; ok {
		delete(s.alerts, alertID)
		delete(s.alertByDetector, id)
	}
	delete(s.detections, id)
}

func sortStreams(streams []*domain.Stream) {
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].CreatedAt.Before(streams[j].CreatedAt)
	})
}

func sortDetections(detections []*domain.Detection) {
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].CreatedAt.After(detections[j].CreatedAt)
	})
}

func sortAlerts(alerts []*domain.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
