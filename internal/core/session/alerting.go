package session

import (
	"context"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/pkg/tracing"
)

const (
	alertTimestampLayout = "20060102_150405.000000"
	publishTimeout       = 5 * time.Second
)

type faceAlertMessage struct {
	Type       string  `json:"type"`
	Timestamp  string  `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	Snapshot   string  `json:"snapshot"`
}

// raiseAlert persists the chosen candidate and notifies the client. Failures
// are logged and leave the cooldown untouched. A snapshot is only kept when
// its alert row was written.
func (s *StreamSession) raiseAlert(ctx context.Context, frame domain.Frame, chosen domain.DetectionCandidate) {
	streamID := s.StreamID()
	now := s.now()

	if streamID == "" {
		s.metrics.AlertFailed("no_stream")
		s.logger.Debugw("Face detected without a stream reference, alert skipped",
			"confidence", chosen.Confidence,
		)
		return
	}

	ctx, span := tracing.TraceAlert(ctx, s.id, string(streamID), chosen.Confidence)
	defer span.End()

	name, err := s.snapshots.Save(ctx, frame, chosen.Box, now)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.AlertFailed("snapshot")
		s.logger.Errorw("Failed to save detection snapshot", "error", err)
		return
	}

	detection, alert, err := s.alerts.RaiseAlert(ctx, streamID, chosen.Confidence, name)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.AlertFailed("persist")
		s.logger.Errorw("Failed to record alert",
			"stream_id", streamID,
			"error", err,
		)
		if err := s.snapshots.Remove(ctx, name); err != nil {
			s.logger.Warnw("Failed to remove orphaned snapshot", "snapshot", name, "error", err)
		}
		return
	}

	s.policy.MarkAlerted(now)
	s.metrics.AlertRaised(streamID)

	snapshotURL := s.snapshots.URL(detection.ImagePath)
	s.logger.Infow("Face alert raised",
		"stream_id", streamID,
		"alert_id", alert.ID,
		"confidence", chosen.Confidence,
	)

	msg := faceAlertMessage{
		Type:       "face_alert",
		Timestamp:  timestampString(now),
		Confidence: chosen.Confidence,
		Snapshot:   snapshotURL,
	}
	if err := s.transport.SendJSON(ctx, msg); err != nil {
		s.logger.Warnw("Failed to send face alert", "error", err)
	}

	if s.publisher != nil {
		s.publish(&domain.AlertEvent{
			AlertID:     alert.ID,
			DetectionID: detection.ID,
			StreamID:    streamID,
			SessionID:   s.id,
			Confidence:  chosen.Confidence,
			Snapshot:    snapshotURL,
			Box:         chosen.Box,
			Timestamp:   now,
		})
	}
}

// publish fans the event out without holding up the frame loop.
func (s *StreamSession) publish(event *domain.AlertEvent) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishAlert(ctx, event); err != nil {
			s.metrics.AlertFailed("publish")
			s.logger.Warnw("Failed to publish alert",
				"alert_id", event.AlertID,
				"error", err,
			)
		}
	}()
}

// timestampString renders t as YYYYmmdd_HHMMSS_ffffff.
func timestampString(t time.Time) string {
	s := t.Format(alertTimestampLayout)
	return s[:15] + "_" + s[16:]
}
