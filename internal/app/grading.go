package app

import (
	"math"
	"time"

	"quiz-arena-service/internal/domain"
)

// ScoringPolicy controls the speed factor applied to correct answers.
//
// A correct answer earns full points within the first FullCreditFraction of the time
// window, then decays linearly to MinFraction of the points at the deadline. The result
// never drops below one point.
type ScoringPolicy struct {
	FullCreditFraction float64
	MinFraction        float64
	// LatencyAllowance bounds how much earlier than the server observed a client may
	// claim to have answered.
	LatencyAllowance time.Duration
}

// DefaultScoringPolicy gives full points in the first half and half points at the deadline.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		FullCreditFraction: 0.5,
		MinFraction:        0.5,
		LatencyAllowance:   2 * time.Second,
	}
}

// Points returns the award for a correct answer given after elapsed of a limit-long window.
func (p ScoringPolicy) Points(base int, elapsed, limit time.Duration) int {
	if base <= 0 {
		return 1
	}
	full := clamp01(p.FullCreditFraction)
	minFrac := clamp01(p.MinFraction)
	if limit <= 0 {
		return base
	}

	ratio := float64(elapsed) / float64(limit)
	if ratio <= full {
		return base
	}
	if ratio > 1 {
		ratio = 1
	}
	decay := 1.0
	if full < 1 {
		decay = (ratio - full) / (1 - full)
	}
	fraction := 1 - (1-minFrac)*decay
	points := int(math.Round(float64(base) * fraction))
	if points < 1 {
		points = 1
	}
	if points > base {
		points = base
	}
	return points
}

// effectiveElapsed reconciles the client-reported elapsed time with the server's view.
// The client may only claim to have been faster than the server saw by LatencyAllowance.
func (p ScoringPolicy) effectiveElapsed(clientMs int64, server time.Duration) time.Duration {
	lower := server - p.LatencyAllowance
	if lower < 0 {
		lower = 0
	}
	if clientMs <= 0 {
		return server
	}
	client := time.Duration(clientMs) * time.Millisecond
	switch {
	case client < lower:
		return lower
	case client > server:
		return server
	default:
		return client
	}
}

// grade produces the verdict for a submission against the current round. It does not
// mutate anything; callers apply the verdict under the room lock.
func grade(seq *Sequence, round Round, view domain.QuestionView, sub domain.Submission, now time.Time, policy ScoringPolicy) domain.Verdict {
	v := domain.Verdict{QuestionID: view.ID}
	if round.Expired(now) {
		v.Expired = true
		return v
	}
	if !seq.Grade(view.ID, sub.Answer) {
		return v
	}
	limit := time.Duration(view.TimeLimitSeconds) * time.Second
	elapsed := policy.effectiveElapsed(sub.ClientElapsedMs, round.Elapsed(now))
	v.IsCorrect = true
	v.PointsEarned = policy.Points(view.Points, elapsed, limit)
	return v
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
