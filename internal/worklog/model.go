package worklog

import (
	"time"
)

// Status represents the lifecycle state of a repair job.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Open reports whether a job in this status is still being worked on.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusPaused
}

// WorkLog is one tracked vehicle repair job.
type WorkLog struct {
	ID           string        // UUIDv4, stable for the record lifetime
	Plate        string        // normalized plate
	StartTime    time.Time     // set at creation, never mutated
	PausedTime   time.Duration // sum of completed pause intervals
	LastPausedAt *time.Time    // set iff Status == StatusPaused
	EndTime      *time.Time    // set iff Status == StatusCompleted
	Status       Status
	MechanicID   string
	PhotoURL     *string // captured image, opaque to the timer
}

// Mechanic is the locally chosen current user.
type Mechanic struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Stats summarizes the collection for the dashboard.
type Stats struct {
	JobsToday   int           // jobs started on the requested calendar day
	OpenJobs    int           // active or paused jobs
	TotalWorked time.Duration // elapsed time summed over every job
}
