package scan

import (
	"sync"
	"time"
)

// Stage represents the lifecycle stage of a plate scan.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageRecognizing Stage = "recognizing"
	StageCreated     Stage = "created"   // plate read, work log started
	StageNotFound    Stage = "not_found" // no plate, or recognition failed
	StageDuplicate   Stage = "duplicate" // plate already has an open job
	StageFailed      Stage = "failed"    // job could not be stored
)

// Done reports whether the scan reached a final stage.
func (s Stage) Done() bool {
	switch s {
	case StageCreated, StageNotFound, StageDuplicate, StageFailed:
		return true
	}
	return false
}

// Scan describes a single photo submitted for plate recognition.
type Scan struct {
	ID          string
	Stage       Stage
	Plate       string  // normalized plate, once recognized
	WorkLogID   string  // created job, or the open job that blocked creation
	Error       *string // last error, if any
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// WorkItem is what a worker needs to process one scan.
type WorkItem struct {
	Scan      Scan
	ImagePath string
	MimeType  string
	PhotoURL  string
	Discard   func() error // removes the photo when no job references it
}

// DefaultTrackerLimit bounds how many scans are remembered.
const DefaultTrackerLimit = 256

// Tracker keeps recent scan outcomes in memory for status polling.
type Tracker struct {
	mu    sync.Mutex
	byID  map[string]*Scan
	order []string
	limit int
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultTrackerLimit
	}
	return &Tracker{byID: make(map[string]*Scan), limit: limit}
}

// Add records a new scan, evicting the oldest once the limit is reached.
func (t *Tracker) Add(s Scan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[s.ID]; !ok {
		t.order = append(t.order, s.ID)
	}
	cpy := s
	t.byID[s.ID] = &cpy
	for len(t.order) > t.limit {
		delete(t.byID, t.order[0])
		t.order = t.order[1:]
	}
}

// Update applies fn to the scan with the given id. Unknown ids are ignored.
func (t *Tracker) Update(id string, fn func(*Scan)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[id]; ok {
		fn(s)
	}
}

// Get returns a copy of the scan.
func (t *Tracker) Get(id string) (Scan, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if !ok {
		return Scan{}, false
	}
	return *s, true
}
