package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/storage"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

type Service struct {
	Log       *slog.Logger
	Cfg       *config.Config
	Store     *worklog.Store
	Queue     *scan.Queue // nil disables async scans
	Photos    *storage.Photos
	Scans     *scan.Tracker
	Processor scan.Processor
	Location  *time.Location // calendar days for list and stats, default Local
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	if svc.Log == nil {
		svc.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if svc.Location == nil {
		svc.Location = time.Local
	}

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc(http.MethodGet+" "+common.PathMechanic, svc.withCommon(svc.handleGetMechanic))
	mux.HandleFunc(http.MethodPut+" "+common.PathMechanic, svc.withCommon(svc.handlePutMechanic))

	mux.HandleFunc(http.MethodGet+" "+common.PathWorkLogs, svc.withCommon(svc.handleListWorkLogs))
	mux.HandleFunc(http.MethodPost+" "+common.PathWorkLogs, svc.withCommon(svc.handleCreateWorkLog))
	mux.HandleFunc(http.MethodDelete+" "+common.PathWorkLogs, svc.withCommon(svc.handleClearWorkLogs))
	mux.HandleFunc(http.MethodGet+" "+common.PathWorkLogs+"/{id}", svc.withCommon(svc.handleGetWorkLog))
	mux.HandleFunc(http.MethodDelete+" "+common.PathWorkLogs+"/{id}", svc.withCommon(svc.handleDeleteWorkLog))
	mux.HandleFunc(http.MethodPost+" "+common.PathWorkLogs+"/{id}/pause", svc.withCommon(svc.transition(svc.Store.Pause)))
	mux.HandleFunc(http.MethodPost+" "+common.PathWorkLogs+"/{id}/resume", svc.withCommon(svc.transition(svc.Store.Resume)))
	mux.HandleFunc(http.MethodPost+" "+common.PathWorkLogs+"/{id}/finish", svc.withCommon(svc.transition(svc.Store.Finish)))

	mux.HandleFunc(http.MethodGet+" "+common.PathStats, svc.withCommon(svc.handleStats))

	mux.HandleFunc(http.MethodPost+" "+common.PathScans, svc.withCommon(svc.handleCreateScan))
	mux.HandleFunc(http.MethodGet+" "+common.PathScans+"/{id}", svc.withCommon(svc.handleGetScan))

	if svc.Photos != nil {
		photos := http.StripPrefix(common.PathPhotos, http.FileServer(http.Dir(svc.Photos.Dir())))
		mux.HandleFunc(http.MethodGet+" "+common.PathPhotos, svc.withCommon(func(w http.ResponseWriter, r *http.Request) {
			// no directory listings
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			photos.ServeHTTP(w, r)
		}))
	}

	var handler http.Handler = mux
	if origins := svc.Cfg.Server.AllowedOrigins; len(origins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", common.HeaderAPIKey, common.HeaderPrefer},
		}).Handler(handler)
	}

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(handler, svc.Log), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		// Enforce max body size
		max := safeInt64(svc.Cfg.Server.MaxUploadSize)
		if max > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorOut{Error: msg})
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
