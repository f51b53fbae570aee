package domain

import "time"

// Frame is one decoded image in packed BGR24 layout, Width*Height*3 bytes.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Clone returns a deep copy so annotations never touch the relayed frame.
func (f Frame) Clone() Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	f.Data = data
	return f
}

// PerformanceStats is the client-facing snapshot of a session's pipeline timings.
// Durations are milliseconds, uptime is seconds.
type PerformanceStats struct {
	CurrentFPS        float64 `json:"current_fps"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
	AvgDetectionTime  float64 `json:"avg_detection_time"`
	TotalFrames       int64   `json:"total_frames"`
	TotalDetections   int64   `json:"total_detections"`
	Uptime            float64 `json:"uptime"`
}
