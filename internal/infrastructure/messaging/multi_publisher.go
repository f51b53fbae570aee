package messaging

import (
	"context"
	"errors"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
)

// MultiPublisher delivers each alert to every configured sink. A failing sink
// does not prevent delivery to the others.
type MultiPublisher struct {
	sinks []ports.AlertPublisher
}

func NewMultiPublisher(sinks ...ports.AlertPublisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

func (m *MultiPublisher) Add(sink ports.AlertPublisher) {
	m.sinks = append(m.sinks, sink)
}

func (m *MultiPublisher) Len() int { return len(m.sinks) }

func (m *MultiPublisher) PublishAlert(ctx context.Context, alert *domain.AlertEvent) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
