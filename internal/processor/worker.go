package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jo-hoe/autoscan/internal/llm"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

// JobCreator starts work logs for recognized plates.
type JobCreator interface {
	Create(plate, mechanicID, photoURL string) (worklog.WorkLog, error)
}

// Worker implements scan.Processor: recognize the plate, then start a job.
type Worker struct {
	Log     *slog.Logger
	Store   JobCreator
	LLM     llm.Client
	Scans   *scan.Tracker
	Timeout time.Duration // per recognition call, 0 means no extra limit
}

// Ensure Worker implements scan.Processor
var _ scan.Processor = (*Worker)(nil)

func New(log *slog.Logger, store JobCreator, c llm.Client, scans *scan.Tracker) *Worker {
	return &Worker{
		Log:   log,
		Store: store,
		LLM:   c,
		Scans: scans,
	}
}

// Process runs one scan to a final stage. A missing plate or a duplicate is a
// normal outcome, not an error; the photo is discarded whenever no job keeps it.
func (w *Worker) Process(ctx context.Context, item scan.WorkItem) error {
	id := item.Scan.ID
	log := w.Log.With("scan_id", id)
	w.Scans.Update(id, func(s *scan.Scan) { s.Stage = scan.StageRecognizing })

	f, err := os.Open(item.ImagePath)
	if err != nil {
		w.finish(id, scan.StageFailed, "", "", err)
		w.discard(log, item)
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	rctx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	plate, ok := llm.Detect(rctx, w.LLM, log, f, item.MimeType)
	if !ok {
		log.Info("no plate in scan")
		w.finish(id, scan.StageNotFound, "", "", nil)
		w.discard(log, item)
		return nil
	}

	job, err := w.Store.Create(plate, "", item.PhotoURL)
	var dup *worklog.DuplicateActiveJobError
	switch {
	case errors.As(err, &dup):
		log.Info("plate already has an open job", "plate", plate, "job_id", dup.Existing.ID)
		w.finish(id, scan.StageDuplicate, plate, dup.Existing.ID, nil)
		w.discard(log, item)
		return nil
	case err != nil:
		w.finish(id, scan.StageFailed, plate, "", err)
		w.discard(log, item)
		return fmt.Errorf("create work log: %w", err)
	}

	w.finish(id, scan.StageCreated, plate, job.ID, nil)
	log.Info("work log started from scan", "job_id", job.ID, "plate", plate)
	return nil
}

func (w *Worker) finish(id string, stage scan.Stage, plate, jobID string, err error) {
	done := time.Now().UTC()
	w.Scans.Update(id, func(s *scan.Scan) {
		s.Stage = stage
		s.Plate = plate
		s.WorkLogID = jobID
		s.CompletedAt = &done
		if err != nil {
			msg := err.Error()
			s.Error = &msg
		}
	})
}

func (w *Worker) discard(log *slog.Logger, item scan.WorkItem) {
	if item.Discard == nil {
		return
	}
	if err := item.Discard(); err != nil {
		log.Warn("discard scan photo", "err", err)
	}
}
