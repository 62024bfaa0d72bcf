package worklog

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireLog is the persisted and API representation: camelCase keys and
// epoch-millisecond integers.
type wireLog struct {
	ID           string  `json:"id"`
	Plate        string  `json:"plate"`
	StartTime    int64   `json:"startTime"`
	EndTime      *int64  `json:"endTime,omitempty"`
	PausedTime   int64   `json:"pausedTime"`
	LastPausedAt *int64  `json:"lastPausedAt,omitempty"`
	Status       Status  `json:"status"`
	MechanicID   string  `json:"mechanicId"`
	PhotoURL     *string `json:"photoUrl,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (l WorkLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLog{
		ID:           l.ID,
		Plate:        l.Plate,
		StartTime:    l.StartTime.UnixMilli(),
		EndTime:      millisPtr(l.EndTime),
		PausedTime:   l.PausedTime.Milliseconds(),
		LastPausedAt: millisPtr(l.LastPausedAt),
		Status:       l.Status,
		MechanicID:   l.MechanicID,
		PhotoURL:     l.PhotoURL,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *WorkLog) UnmarshalJSON(data []byte) error {
	var w wireLog
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Status.Valid() {
		return fmt.Errorf("unknown status %q", w.Status)
	}
	*l = WorkLog{
		ID:           w.ID,
		Plate:        w.Plate,
		StartTime:    time.UnixMilli(w.StartTime),
		EndTime:      timePtr(w.EndTime),
		PausedTime:   time.Duration(w.PausedTime) * time.Millisecond,
		LastPausedAt: timePtr(w.LastPausedAt),
		Status:       w.Status,
		MechanicID:   w.MechanicID,
		PhotoURL:     w.PhotoURL,
	}
	return nil
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
