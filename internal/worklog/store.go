package worklog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/autoscan/internal/kv"
	"github.com/jo-hoe/autoscan/internal/plate"
	"github.com/jo-hoe/autoscan/internal/util"
)

// Storage keys of the two persisted documents.
const (
	KeyLogs     = "logs"
	KeyMechanic = "mechanic"
)

// DefaultMechanicID is recorded on jobs created before anyone logged in.
const DefaultMechanicID = "default"

var (
	ErrEmptyName  = errors.New("mechanic name is empty")
	ErrNoMechanic = errors.New("no mechanic logged in")
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses []Status
	OpenOnly bool
	Day      time.Time // calendar day of StartTime, in the store location
}

// Store owns the work log collection and the current mechanic. Every mutation
// writes the whole document back to the backend before it returns; a failed
// write leaves the in-memory state untouched.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	log      *slog.Logger
	clock    func() time.Time
	loc      *time.Location
	logs     []WorkLog // most recent first
	mechanic *Mechanic
}

// NewStore creates an empty store over backend. Call Load to read persisted state.
func NewStore(backend kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		kv:    backend,
		log:   logger,
		clock: time.Now,
		loc:   time.Local,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.clock = now
	return s
}

// WithLocation sets the zone used for calendar-day filtering.
func (s *Store) WithLocation(loc *time.Location) *Store {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// now truncates to milliseconds so in-memory values equal their persisted form.
func (s *Store) now() time.Time {
	return time.UnixMilli(s.clock().UnixMilli())
}

// Load replaces the in-memory state with the persisted documents.
// Missing or unreadable documents load as empty; they are logged, not returned.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = nil
	if data, ok := s.read(KeyLogs); ok {
		var logs []WorkLog
		if err := json.Unmarshal(data, &logs); err != nil {
			s.log.Warn("discarding unreadable work logs", "err", err, "bytes", len(data))
		} else {
			s.logs = logs
		}
	}

	s.mechanic = nil
	if data, ok := s.read(KeyMechanic); ok {
		var m Mechanic
		if err := json.Unmarshal(data, &m); err != nil {
			s.log.Warn("discarding unreadable mechanic", "err", err)
		} else if m.ID != "" {
			s.mechanic = &m
		}
	}
	s.log.Debug("store loaded", "work_logs", len(s.logs), "mechanic", s.mechanic != nil)
}

func (s *Store) read(key string) ([]byte, bool) {
	data, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.log.Warn("read persisted state", "key", key, "err", err)
		}
		return nil, false
	}
	return data, true
}

func (s *Store) commitLogs(next []WorkLog) error {
	if next == nil {
		next = []WorkLog{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal work logs: %w", err)
	}
	if err := s.kv.Put(KeyLogs, data); err != nil {
		return fmt.Errorf("persist work logs: %w", err)
	}
	s.logs = next
	return nil
}

func (s *Store) commitMechanic(m Mechanic) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mechanic: %w", err)
	}
	if err := s.kv.Put(KeyMechanic, data); err != nil {
		return fmt.Errorf("persist mechanic: %w", err)
	}
	s.mechanic = &m
	return nil
}

// Create starts a new active job for rawPlate. It fails with a
// *DuplicateActiveJobError if the normalized plate already has an open job.
// An empty mechanicID falls back to the logged-in mechanic.
func (s *Store) Create(rawPlate, mechanicID, photoURL string) (WorkLog, error) {
	p := plate.Normalize(rawPlate)
	if p == "" {
		return WorkLog{}, ErrEmptyPlate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.logs {
		if l.Plate == p && l.Status.Open() {
			return WorkLog{}, &DuplicateActiveJobError{Existing: l}
		}
	}

	if strings.TrimSpace(mechanicID) == "" {
		mechanicID = DefaultMechanicID
		if s.mechanic != nil {
			mechanicID = s.mechanic.ID
		}
	}
	job := WorkLog{
		ID:         util.NewID(),
		Plate:      p,
		StartTime:  s.now(),
		Status:     StatusActive,
		MechanicID: mechanicID,
	}
	if photoURL != "" {
		v := photoURL
		job.PhotoURL = &v
	}

	next := make([]WorkLog, 0, len(s.logs)+1)
	next = append(next, job)
	next = append(next, s.logs...)
	if err := s.commitLogs(next); err != nil {
		return WorkLog{}, err
	}
	s.log.Info("work log created", "job_id", job.ID, "plate", job.Plate)
	return job, nil
}

// Pause moves an active job to paused.
func (s *Store) Pause(id string) (WorkLog, error) {
	return s.apply(id, WorkLog.Pause)
}

// Resume moves a paused job back to active.
func (s *Store) Resume(id string) (WorkLog, error) {
	return s.apply(id, WorkLog.Resume)
}

// Finish completes an active or paused job.
func (s *Store) Finish(id string) (WorkLog, error) {
	return s.apply(id, WorkLog.Finish)
}

func (s *Store) apply(id string, transition func(WorkLog, time.Time) (WorkLog, error)) (WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return WorkLog{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	updated, err := transition(s.logs[idx], s.now())
	if err != nil {
		return s.logs[idx], err
	}
	next := make([]WorkLog, len(s.logs))
	copy(next, s.logs)
	next[idx] = updated
	if err := s.commitLogs(next); err != nil {
		return s.logs[idx], err
	}
	s.log.Info("work log status changed", "job_id", id, "status", updated.Status)
	return updated, nil
}

// Delete removes a job regardless of status.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]WorkLog, 0, len(s.logs)-1)
	next = append(next, s.logs[:idx]...)
	next = append(next, s.logs[idx+1:]...)
	if err := s.commitLogs(next); err != nil {
		return err
	}
	s.log.Info("work log deleted", "job_id", id)
	return nil
}

// Clear removes every job.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if err := s.commitLogs([]WorkLog{}); err != nil {
		return err
	}
	s.log.Info("work logs cleared", "removed", n)
	return nil
}

// Get returns the job with the given id.
func (s *Store) Get(id string) (WorkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return WorkLog{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.logs[idx], nil
}

// List returns the jobs matching f, most recent first.
func (s *Store) List(f Filter) []WorkLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkLog, 0, len(s.logs))
	for _, l := range s.logs {
		if f.match(l, s.loc) {
			out = append(out, l)
		}
	}
	return out
}

func (f Filter) match(l WorkLog, loc *time.Location) bool {
	if f.OpenOnly && !l.Status.Open() {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if l.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Day.IsZero() && !sameDay(l.StartTime, f.Day, loc) {
		return false
	}
	return true
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Stats summarizes jobs for day at the current instant.
func (s *Store) Stats(day time.Time) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.logs, day, s.loc, s.now())
}

// Now returns the store clock reading used for transitions.
func (s *Store) Now() time.Time {
	return s.now()
}

// Summarize counts jobs started on day and totals elapsed time over all logs.
func Summarize(logs []WorkLog, day time.Time, loc *time.Location, now time.Time) Stats {
	var st Stats
	for _, l := range logs {
		if sameDay(l.StartTime, day, loc) {
			st.JobsToday++
		}
		if l.Status.Open() {
			st.OpenJobs++
		}
		st.TotalWorked += Elapsed(l, now)
	}
	return st
}

func (s *Store) indexOf(id string) int {
	for i, l := range s.logs {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Mechanic returns the logged-in mechanic, if any.
func (s *Store) Mechanic() (Mechanic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mechanic == nil {
		return Mechanic{}, false
	}
	return *s.mechanic, true
}

// Login records name as the current mechanic under a fresh id.
func (s *Store) Login(name string) (Mechanic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Mechanic{}, ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Mechanic{Name: name, ID: util.NewID()}
	if err := s.commitMechanic(m); err != nil {
		return Mechanic{}, err
	}
	s.log.Info("mechanic logged in", "mechanic_id", m.ID)
	return m, nil
}

// Rename changes the current mechanic's display name, keeping the id.
func (s *Store) Rename(name string) (Mechanic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Mechanic{}, ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mechanic == nil {
		return Mechanic{}, ErrNoMechanic
	}
	m := Mechanic{Name: name, ID: s.mechanic.ID}
	if err := s.commitMechanic(m); err != nil {
		return Mechanic{}, err
	}
	return m, nil
}
