package app

import (
	"sync"
	"time"
)

// Round is the server-anchored countdown of the current question.
type Round struct {
	QuestionID   string    `json:"questionId"`
	StartedAt    time.Time `json:"startedAt"`
	LimitSeconds int       `json:"limitSeconds"`
}

func startRound(questionID string, limitSeconds int, now time.Time) *Round {
	return &Round{QuestionID: questionID, StartedAt: now, LimitSeconds: limitSeconds}
}

// Deadline is the instant the round expires.
func (r Round) Deadline() time.Time {
	return r.StartedAt.Add(time.Duration(r.LimitSeconds) * time.Second)
}

// Elapsed is the server-measured time since the round started.
func (r Round) Elapsed(now time.Time) time.Duration {
	d := now.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns whole seconds left, rounded up and floored at zero.
func (r Round) Remaining(now time.Time) int {
	left := r.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Expired reports whether now is at or past the deadline.
func (r Round) Expired(now time.Time) bool {
	return !now.Before(r.Deadline())
}

// Scheduler runs keyed one-shot callbacks. Scheduling a key replaces its pending callback.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string)
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels every pending callback.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
