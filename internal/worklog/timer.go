package worklog

import (
	"fmt"
	"time"
)

// Pause moves an active job to paused and stamps LastPausedAt.
// PausedTime is only updated on Resume.
func (l WorkLog) Pause(now time.Time) (WorkLog, error) {
	if l.Status != StatusActive {
		return l, &TransitionError{ID: l.ID, Op: "pause", From: l.Status}
	}
	at := now
	l.LastPausedAt = &at
	l.Status = StatusPaused
	return l, nil
}

// Resume folds the open pause interval into PausedTime and reactivates the job.
// A negative interval (clock moved backwards) counts as zero.
func (l WorkLog) Resume(now time.Time) (WorkLog, error) {
	if l.Status != StatusPaused {
		return l, &TransitionError{ID: l.ID, Op: "resume", From: l.Status}
	}
	if l.LastPausedAt != nil {
		if d := now.Sub(*l.LastPausedAt); d > 0 {
			l.PausedTime += d
		}
	}
	l.LastPausedAt = nil
	l.Status = StatusActive
	return l, nil
}

// Finish completes an active or paused job. Completed jobs are rejected so
// EndTime is written exactly once. Finishing while paused clears LastPausedAt
// without folding the open interval into PausedTime.
func (l WorkLog) Finish(now time.Time) (WorkLog, error) {
	if !l.Status.Open() {
		return l, &TransitionError{ID: l.ID, Op: "finish", From: l.Status}
	}
	end := now
	l.EndTime = &end
	l.LastPausedAt = nil
	l.Status = StatusCompleted
	return l, nil
}

// Elapsed returns the worked time of l at instant now, excluding paused
// intervals. The result is never negative.
func Elapsed(l WorkLog, now time.Time) time.Duration {
	end := now
	if l.EndTime != nil {
		end = *l.EndTime
	}
	raw := end.Sub(l.StartTime) - l.PausedTime
	if l.Status == StatusPaused && l.LastPausedAt != nil {
		raw -= now.Sub(*l.LastPausedAt)
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// FormatClock renders d as HH:MM:SS for live timers.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// FormatHours renders d as "Xh Ym" for totals.
func FormatHours(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := int64(d / time.Minute)
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}
