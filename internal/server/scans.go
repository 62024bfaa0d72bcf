package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/llm"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/storage"
	"github.com/jo-hoe/autoscan/internal/util"
)

func (svc *Service) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	if svc.Photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photo storage not configured")
		return
	}
	max := safeInt64(svc.Cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(max); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+humanize.IBytes(uint64(mbe.Limit)))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	files := r.MultipartForm.File[common.FormFieldFile]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	photo, err := svc.Photos.SaveMultipartImage(files[0], max)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "upload failed: "+err.Error())
		return
	}

	s := scan.Scan{ID: util.NewID(), Stage: scan.StageQueued, CreatedAt: time.Now().UTC()}
	svc.Scans.Add(s)
	item := scan.WorkItem{
		Scan:      s,
		ImagePath: photo.Path,
		MimeType:  photo.MimeType,
		PhotoURL:  photo.URL,
		Discard:   photo.Remove,
	}
	log := svc.Log.With("scan_id", s.ID)

	// Determine sync vs async based on Prefer header
	prefer := strings.ToLower(strings.TrimSpace(r.Header.Get(common.HeaderPrefer)))
	if svc.Queue != nil && strings.Contains(prefer, common.PreferRespondAsync) {
		if err := svc.Queue.Enqueue(item); err != nil {
			_ = photo.Remove()
			msg := err.Error()
			done := time.Now().UTC()
			svc.Scans.Update(s.ID, func(sc *scan.Scan) {
				sc.Stage = scan.StageFailed
				sc.Error = &msg
				sc.CompletedAt = &done
			})
			writeError(w, http.StatusServiceUnavailable, "queue full, try later")
			return
		}
		log.Info("scan enqueued")
		writeJSON(w, http.StatusAccepted, toScanOut(s))
		return
	}

	// Synchronous path: the outcome lands in the tracker either way.
	if err := svc.Processor.Process(r.Context(), item); err != nil {
		log.Error("scan processing failed", "err", err)
	}
	done, ok := svc.Scans.Get(s.ID)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	svc.writeScanResult(w, done)
}

func (svc *Service) handleGetScan(w http.ResponseWriter, r *http.Request) {
	s, ok := svc.Scans.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	out := toScanOut(s)
	if s.WorkLogID != "" {
		if job, err := svc.Store.Get(s.WorkLogID); err == nil {
			out.WorkLog = workLogOut(job, svc.Store.Now())
		}
	}
	if !s.Stage.Done() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, http.StatusOK, out)
}

// writeScanResult maps a finished scan to a response: created 201, no plate
// 422, open job for the plate 409, anything else 500.
func (svc *Service) writeScanResult(w http.ResponseWriter, s scan.Scan) {
	out := toScanOut(s)
	var job map[string]any
	if s.WorkLogID != "" {
		if l, err := svc.Store.Get(s.WorkLogID); err == nil {
			job = workLogOut(l, svc.Store.Now())
		}
	}
	switch s.Stage {
	case scan.StageCreated:
		out.WorkLog = job
		writeJSON(w, http.StatusCreated, out)
	case scan.StageNotFound:
		writeJSON(w, http.StatusUnprocessableEntity, errorOut{Error: llm.ErrNoPlate.Error()})
	case scan.StageDuplicate:
		writeJSON(w, http.StatusConflict, errorOut{Error: "plate " + s.Plate + " already has an open job", Existing: job})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
