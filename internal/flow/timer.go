package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/util"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// TimerInfo describes a pending timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SimpleTimer implements the Timer interface using Go's standard time package.
type SimpleTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
}

var _ Timer = (*SimpleTimer)(nil)

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	slog.Debug("Creating SimpleTimer")
	return &SimpleTimer{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter schedules a function to run after a delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if delay <= 0 {
		return "", fmt.Errorf("timer delay must be positive, got %v", delay)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := util.GenerateRandomID("timer_", 16)

	now := time.Now()
	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		_, live := t.timers[id]
		delete(t.timers, id)
		t.mu.Unlock()
		if !live {
			return
		}
		slog.Debug("SimpleTimer executing scheduled function", "id", id)
		fn()
	})
	t.timers[id] = &timerEntry{timer: timer, scheduledAt: now, expiresAt: now.Add(delay)}

	slog.Debug("SimpleTimer ScheduleAfter succeeded", "id", id, "delay", delay)
	return id, nil
}

// Cancel cancels a scheduled function by ID.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer Cancel succeeded", "id", id)
	}
	return nil
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Info("SimpleTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
}

// ListActive returns information about all pending timers.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		result = append(result, TimerInfo{ID: id, ScheduledAt: entry.scheduledAt, ExpiresAt: entry.expiresAt})
	}
	return result
}
