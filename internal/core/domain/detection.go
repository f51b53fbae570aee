package domain

import "time"

type DetectionID string
type AlertID string

// BoundingBox is a face region in frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x" msgpack:"x"`
	Y      int `json:"y" msgpack:"y"`
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`
}

// DetectionCandidate is one face reported by the model for a frame.
type DetectionCandidate struct {
	Confidence float64
	Box        BoundingBox
	FrameTime  time.Time
}

// Detection is a persisted candidate that passed the alert policy.
type Detection struct {
	ID         DetectionID
	StreamID   StreamID
	Confidence float64
	ImagePath  string
	CreatedAt  time.Time
}

// Alert references exactly one Detection.
type Alert struct {
	ID          AlertID
	DetectionID DetectionID
	Viewed      bool
	CreatedAt   time.Time
}

// AlertView joins an alert with its detection for listing.
type AlertView struct {
	Alert     *Alert
	Detection *Detection
}

// AlertEvent is the fan-out payload published after an alert is persisted.
type AlertEvent struct {
	AlertID     AlertID     `json:"alert_id"`
	DetectionID DetectionID `json:"detection_id"`
	StreamID    StreamID    `json:"stream_id"`
	SessionID   string      `json:"session_id"`
	Confidence  float64     `json:"confidence"`
	Snapshot    string      `json:"snapshot"`
	Box         BoundingBox `json:"box"`
	Timestamp   time.Time   `json:"timestamp"`
}
