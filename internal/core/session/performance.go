package session

import (
	"sync"
	"time"

	"camwatch/internal/core/domain"
)

const fpsWindow = 60 * time.Second

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring[T any] struct {
	items []T
	next  int
	full  bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// each visits entries oldest first.
func (r *ring[T]) each(fn func(T)) {
	if r.full {
		for _, v := range r.items[r.next:] {
			fn(v)
		}
	}
	for _, v := range r.items[:r.next] {
		fn(v)
	}
}

// PerformanceMonitor keeps bounded samples of frame timing for one session.
type PerformanceMonitor struct {
	mu  sync.Mutex
	now func() time.Time

	started    time.Time
	frameTimes *ring[time.Time]
	processing *ring[time.Duration]
	detection  *ring[time.Duration]

	totalFrames     int64
	totalDetections int64
}

func NewPerformanceMonitor(window int, now func() time.Time) *PerformanceMonitor {
	if now == nil {
		now = time.Now
	}
	return &PerformanceMonitor{
		now:        now,
		started:    now(),
		frameTimes: newRing[time.Time](window),
		processing: newRing[time.Duration](window),
		detection:  newRing[time.Duration](window),
	}
}

// Record adds one frame sample. detection is nil when no detection pass ran.
func (m *PerformanceMonitor) Record(processing time.Duration, detection *time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frameTimes.push(m.now())
	m.processing.push(processing)
	m.totalFrames++
	if detection != nil {
		m.detection.push(*detection)
		m.totalDetections++
	}
}

// Snapshot summarizes the retained samples. It is all zero until the first Record.
func (m *PerformanceMonitor) Snapshot() domain.PerformanceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalFrames == 0 {
		return domain.PerformanceStats{}
	}

	now := m.now()
	recent := 0
	m.frameTimes.each(func(t time.Time) {
		if now.Sub(t) < fpsWindow {
			recent++
		}
	})

	return domain.PerformanceStats{
		CurrentFPS:        float64(recent) / fpsWindow.Seconds(),
		AvgProcessingTime: meanMillis(m.processing),
		AvgDetectionTime:  meanMillis(m.detection),
		TotalFrames:       m.totalFrames,
		TotalDetections:   m.totalDetections,
		Uptime:            now.Sub(m.started).Seconds(),
	}
}

func meanMillis(r *ring[time.Duration]) float64 {
	n := r.len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	r.each(func(d time.Duration) { sum += d })
	return float64(sum) / float64(n) / float64(time.Millisecond)
}
