package memory

import (
	"context"
	"fmt"

	"camwatch/internal/core/domain"
)

type AlertRepository struct {
	store *Store
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.detections[alert.DetectionID]; !ok {
		return domain.ErrDetectionNotFound
	}
	if _, taken := s.alertByDetector[alert.DetectionID]; taken {
		return domain.ErrAlertExists
	}
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("alert already exists: %s", alert.ID)
	}
	s.alerts[alert.ID] = *alert
	s.alertByDetector[alert.DetectionID] = alert.ID
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrAlertNotFound
	}
	return &alert, nil
}

// Update only changes mutable fields; the detection link is fixed at creation.
func (r *AlertRepository) Update(ctx context.Context, alert *domain.Alert) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.alerts[alert.ID]
	if !ok {
		return domain.ErrAlertNotFound
	}
	current.Viewed = alert.Viewed
	s.alerts[alert.ID] = current
	return nil
}

func (r *AlertRepository) Delete(ctx context.Context, id domain.AlertID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return domain.ErrAlertNotFound
	}
	delete(s.alerts, id)
	delete(s.alertByDetector, alert.DetectionID)
	return nil
}

func (r *AlertRepository) List(ctx context.Context) ([]*domain.Alert, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]*domain.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		alert := alert
		alerts = append(alerts, &alert)
	}
	sortAlerts(alerts)
	return alerts, nil
}
