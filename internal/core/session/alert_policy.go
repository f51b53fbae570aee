package session

import (
	"time"

	"camwatch/internal/core/domain"
)

// Decision is the outcome of evaluating one detection pass.
type Decision struct {
	ShouldAlert bool
	Chosen      domain.DetectionCandidate
}

// AlertPolicy throttles alerts to at most one per cooldown window.
type AlertPolicy struct {
	cooldown  time.Duration
	lastAlert time.Time
}

func NewAlertPolicy(cooldown time.Duration) *AlertPolicy {
	return &AlertPolicy{cooldown: cooldown}
}

// Evaluate picks the highest-confidence candidate, the first one on ties, if
// the cooldown has elapsed since the last recorded alert.
func (p *AlertPolicy) Evaluate(candidates []domain.DetectionCandidate, now time.Time) Decision {
	if len(candidates) == 0 {
		return Decision{}
	}
	if !p.lastAlert.IsZero() && now.Sub(p.lastAlert) < p.cooldown {
		return Decision{}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return Decision{ShouldAlert: true, Chosen: best}
}

// MarkAlerted starts a new cooldown window. Call it only once the alert is persisted.
func (p *AlertPolicy) MarkAlerted(now time.Time) {
	p.lastAlert = now
}

// LastAlert is the zero time until the first alert.
func (p *AlertPolicy) LastAlert() time.Time {
	return p.lastAlert
}
