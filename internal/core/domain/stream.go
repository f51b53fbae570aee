package domain

import (
	"time"
)

type StreamID string

type StreamStatus string

const (
	StreamOffline StreamStatus = "offline"
	StreamOnline  StreamStatus = "online"
)

// DefaultConfidenceThreshold is the per-stream threshold assigned on creation.
const DefaultConfidenceThreshold = 0.8

// Stream is a registered camera source.
type Stream struct {
	ID                  StreamID
	Name                string
	Description         string
	RTSPURL             string
	DetectionEnabled    bool
	ConfidenceThreshold float64
	Status              StreamStatus
	LastConnected       *time.Time
	CreatedAt           time.Time
}

// NewStream returns a stream with the registration defaults applied.
func NewStream(name, description, rtspURL string) *Stream {
	return &Stream{
		Name:                name,
		Description:         description,
		RTSPURL:             rtspURL,
		DetectionEnabled:    true,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Status:              StreamOffline,
		CreatedAt:           time.Now(),
	}
}

// StreamAction is an administrative toggle applied to a stream record.
type StreamAction string

const (
	StreamActionStart  StreamAction = "start"
	StreamActionPause  StreamAction = "pause"
	StreamActionResume StreamAction = "resume"
)

// Apply updates DetectionEnabled for the action. It reports false for unknown actions.
func (s *Stream) Apply(action StreamAction) bool {
	switch action {
	case StreamActionPause:
		s.DetectionEnabled = false
	case StreamActionResume, StreamActionStart:
		s.DetectionEnabled = true
	default:
		return false
	}
	return true
}
