package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/plate"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

func (svc *Service) handleGetMechanic(w http.ResponseWriter, r *http.Request) {
	m, ok := svc.Store.Mechanic()
	if !ok {
		writeError(w, http.StatusNotFound, worklog.ErrNoMechanic.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handlePutMechanic logs in on first use and renames afterwards, keeping the id.
func (svc *Service) handlePutMechanic(w http.ResponseWriter, r *http.Request) {
	var req mechanicRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	var (
		m   worklog.Mechanic
		err error
	)
	if _, ok := svc.Store.Mechanic(); ok {
		m, err = svc.Store.Rename(req.Name)
	} else {
		m, err = svc.Store.Login(req.Name)
	}
	if err != nil {
		svc.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (svc *Service) handleListWorkLogs(w http.ResponseWriter, r *http.Request) {
	f, err := svc.parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs := svc.Store.List(f)
	now := svc.Store.Now()
	out := listOut{WorkLogs: make([]map[string]any, 0, len(logs)), Count: len(logs)}
	for _, l := range logs {
		out.WorkLogs = append(out.WorkLogs, workLogOut(l, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleCreateWorkLog(w http.ResponseWriter, r *http.Request) {
	var req createWorkLogRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	p, err := plate.ValidateManual(req.Plate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := svc.Store.Create(p, req.MechanicID, strings.TrimSpace(req.PhotoURL))
	if err != nil {
		svc.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workLogOut(job, svc.Store.Now()))
}

func (svc *Service) handleGetWorkLog(w http.ResponseWriter, r *http.Request) {
	job, err := svc.Store.Get(r.PathValue("id"))
	if err != nil {
		svc.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workLogOut(job, svc.Store.Now()))
}

func (svc *Service) handleDeleteWorkLog(w http.ResponseWriter, r *http.Request) {
	if err := svc.Store.Delete(r.PathValue("id")); err != nil {
		svc.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleClearWorkLogs(w http.ResponseWriter, r *http.Request) {
	if err := svc.Store.Clear(); err != nil {
		svc.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) transition(op func(id string) (worklog.WorkLog, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := op(r.PathValue("id"))
		if err != nil {
			svc.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workLogOut(job, svc.Store.Now()))
	}
}

func (svc *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	day, err := svc.parseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if day.IsZero() {
		day = svc.Store.Now().In(svc.Location)
	}
	st := svc.Store.Stats(day)
	writeJSON(w, http.StatusOK, statsOut{
		Day:           day.Format(common.DayLayout),
		JobsToday:     st.JobsToday,
		OpenJobs:      st.OpenJobs,
		TotalWorkedMs: st.TotalWorked.Milliseconds(),
		TotalWorked:   worklog.FormatHours(st.TotalWorked),
	})
}

// parseFilter reads status (repeatable or comma separated), day and open.
func (svc *Service) parseFilter(q url.Values) (worklog.Filter, error) {
	var f worklog.Filter
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			st := worklog.Status(strings.ToLower(strings.TrimSpace(part)))
			if st == "" {
				continue
			}
			if !st.Valid() {
				return f, fmt.Errorf("unknown status %q", part)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	day, err := svc.parseDay(q.Get("day"))
	if err != nil {
		return f, err
	}
	f.Day = day
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid open %q", v)
		}
		f.OpenOnly = open
	}
	return f, nil
}

// parseDay accepts YYYY-MM-DD or "today"; empty yields the zero time.
func (svc *Service) parseDay(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, nil
	case strings.EqualFold(v, "today"):
		return svc.Store.Now().In(svc.Location), nil
	}
	d, err := time.ParseInLocation(common.DayLayout, v, svc.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, want %s", v, common.DayLayout)
	}
	return d, nil
}

func (svc *Service) writeStoreError(w http.ResponseWriter, err error) {
	var dup *worklog.DuplicateActiveJobError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorOut{
			Error:    err.Error(),
			Existing: workLogOut(dup.Existing, svc.Store.Now()),
		})
	case errors.Is(err, worklog.ErrNotFound), errors.Is(err, worklog.ErrNoMechanic):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, worklog.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, worklog.ErrEmptyPlate), errors.Is(err, worklog.ErrEmptyName), errors.Is(err, plate.ErrTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		svc.Log.Error("store operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
