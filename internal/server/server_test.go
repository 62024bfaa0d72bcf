package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/kv"
	"github.com/jo-hoe/autoscan/internal/llm/mock"
	"github.com/jo-hoe/autoscan/internal/processor"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/storage"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	svc    *Service
	srv    *http.Server
	photos *storage.Photos
}

// newTestEnv wires a service over a file-backed store and a mock recognizer
// that always answers reply.
func newTestEnv(t *testing.T, reply string) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	backend, err := kv.NewFileStore(filepath.Join(tmp, common.BlobsDirName))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := worklog.NewStore(backend, discardLogger()).WithLocation(time.UTC)
	store.Load()
	tracker := scan.NewTracker(0)
	photos := storage.NewPhotos(tmp)
	svc := &Service{
		Log: discardLogger(),
		Cfg: &config.Config{Server: config.ServerConfig{
			Addr:          ":0",
			MaxUploadSize: config.ByteSize(1024 * 1024),
			StorageDir:    tmp,
		}},
		Store:     store,
		Photos:    photos,
		Scans:     tracker,
		Processor: processor.New(discardLogger(), store, mock.New(config.MockSettings{Plate: reply}), tracker),
		Location:  time.UTC,
	}
	return &testEnv{svc: svc, srv: NewHTTPServer(svc), photos: photos}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", common.ContentTypeJSON)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v (%s)", err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (e *testEnv) createJob(t *testing.T, plate string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, common.PathWorkLogs, map[string]string{"plate": plate})
	expectStatus(t, rec, http.StatusCreated)
	return decode(t, rec)["id"].(string)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, "")
	rec := e.do(t, http.MethodGet, common.PathHealthz, nil)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAPIKeyRequired(t *testing.T) {
	e := newTestEnv(t, "")
	e.svc.Cfg.Server.APIKey = "secret"

	expectStatus(t, e.do(t, http.MethodGet, common.PathWorkLogs, nil), http.StatusUnauthorized)
	// health stays open for probes
	expectStatus(t, e.do(t, http.MethodGet, common.PathHealthz, nil), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, common.PathWorkLogs, nil)
	req.Header.Set(common.HeaderAPIKey, "secret")
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
}

func TestMechanic_LoginThenRename(t *testing.T) {
	e := newTestEnv(t, "")
	expectStatus(t, e.do(t, http.MethodGet, common.PathMechanic, nil), http.StatusNotFound)

	rec := e.do(t, http.MethodPut, common.PathMechanic, map[string]string{"name": "Ana"})
	expectStatus(t, rec, http.StatusOK)
	first := decode(t, rec)

	rec = e.do(t, http.MethodPut, common.PathMechanic, map[string]string{"name": "Ana Silva"})
	expectStatus(t, rec, http.StatusOK)
	second := decode(t, rec)
	if second["id"] != first["id"] || second["name"] != "Ana Silva" {
		t.Fatalf("rename changed id or kept name: %v -> %v", first, second)
	}

	rec = e.do(t, http.MethodPut, common.PathMechanic, map[string]string{"name": ""})
	expectStatus(t, rec, http.StatusBadRequest)
	if d, ok := decode(t, rec)["details"].([]any); !ok || len(d) != 1 {
		t.Fatalf("expected validation details: %s", rec.Body.String())
	}

	// jobs default to the logged-in mechanic
	id := e.createJob(t, "aa-11-bb")
	job, _ := e.svc.Store.Get(id)
	if job.MechanicID != first["id"] {
		t.Fatalf("mechanicId = %q", job.MechanicID)
	}
}

func TestCreateWorkLog(t *testing.T) {
	e := newTestEnv(t, "")

	rec := e.do(t, http.MethodPost, common.PathWorkLogs, map[string]string{"plate": " ab 12·cd "})
	expectStatus(t, rec, http.StatusCreated)
	job := decode(t, rec)
	if job["plate"] != "AB12CD" || job["status"] != "active" {
		t.Fatalf("unexpected job: %v", job)
	}
	for _, k := range []string{"id", "startTime", "pausedTime", "elapsedMs", "mechanicId"} {
		if _, ok := job[k]; !ok {
			t.Fatalf("missing %s in %v", k, job)
		}
	}
	if _, ok := job["endTime"]; ok {
		t.Fatalf("endTime must be absent on an active job")
	}

	expectStatus(t, e.do(t, http.MethodPost, common.PathWorkLogs, map[string]string{"plate": "a-1"}), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, common.PathWorkLogs, map[string]string{}), http.StatusBadRequest)

	rec = e.do(t, http.MethodPost, common.PathWorkLogs, map[string]string{"plate": "ab12cd"})
	expectStatus(t, rec, http.StatusConflict)
	existing, ok := decode(t, rec)["existing"].(map[string]any)
	if !ok || existing["id"] != job["id"] {
		t.Fatalf("conflict should carry the open job: %s", rec.Body.String())
	}
}

func TestTransitions(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createJob(t, "XY-1234")
	base := common.PathWorkLogs + "/" + id

	rec := e.do(t, http.MethodPost, base+"/pause", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode(t, rec); got["status"] != "paused" || got["lastPausedAt"] == nil {
		t.Fatalf("pause: %v", got)
	}
	expectStatus(t, e.do(t, http.MethodPost, base+"/pause", nil), http.StatusConflict)

	rec = e.do(t, http.MethodPost, base+"/resume", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode(t, rec); got["status"] != "active" {
		t.Fatalf("resume: %v", got)
	}

	rec = e.do(t, http.MethodPost, base+"/finish", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode(t, rec); got["status"] != "completed" || got["endTime"] == nil {
		t.Fatalf("finish: %v", got)
	}
	expectStatus(t, e.do(t, http.MethodPost, base+"/finish", nil), http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodPost, base+"/resume", nil), http.StatusConflict)

	expectStatus(t, e.do(t, http.MethodPost, common.PathWorkLogs+"/nope/pause", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, common.PathWorkLogs+"/nope", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, base, nil), http.StatusOK)
}

func TestListFiltersAndStats(t *testing.T) {
	e := newTestEnv(t, "")
	done := e.createJob(t, "DONE-1")
	e.createJob(t, "OPEN-1")
	paused := e.createJob(t, "PAUSE-1")
	expectStatus(t, e.do(t, http.MethodPost, common.PathWorkLogs+"/"+done+"/finish", nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodPost, common.PathWorkLogs+"/"+paused+"/pause", nil), http.StatusOK)

	count := func(query string) int {
		rec := e.do(t, http.MethodGet, common.PathWorkLogs+query, nil)
		expectStatus(t, rec, http.StatusOK)
		return int(decode(t, rec)["count"].(float64))
	}
	if n := count(""); n != 3 {
		t.Fatalf("all = %d", n)
	}
	if n := count("?open=true"); n != 2 {
		t.Fatalf("open = %d", n)
	}
	if n := count("?status=completed"); n != 1 {
		t.Fatalf("completed = %d", n)
	}
	if n := count("?status=active,paused&day=today"); n != 2 {
		t.Fatalf("active,paused today = %d", n)
	}
	if n := count("?day=2001-01-01"); n != 0 {
		t.Fatalf("old day = %d", n)
	}

	rec := e.do(t, http.MethodGet, common.PathWorkLogs, nil)
	first := decode(t, rec)["workLogs"].([]any)[0].(map[string]any)
	if first["id"] != paused {
		t.Fatalf("list must be most recent first, got %v", first["plate"])
	}

	expectStatus(t, e.do(t, http.MethodGet, common.PathWorkLogs+"?status=running", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, common.PathWorkLogs+"?day=01/02/2024", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, common.PathWorkLogs+"?open=maybe", nil), http.StatusBadRequest)

	rec = e.do(t, http.MethodGet, common.PathStats, nil)
	expectStatus(t, rec, http.StatusOK)
	st := decode(t, rec)
	if st["jobsToday"] != float64(3) || st["openJobs"] != float64(2) {
		t.Fatalf("stats: %v", st)
	}
	if st["day"] != time.Now().UTC().Format(common.DayLayout) {
		t.Fatalf("stats day: %v", st["day"])
	}
}

func TestDeleteAndClear(t *testing.T) {
	e := newTestEnv(t, "")
	id := e.createJob(t, "DEL-123")
	e.createJob(t, "KEEP-123")

	expectStatus(t, e.do(t, http.MethodDelete, common.PathWorkLogs+"/"+id, nil), http.StatusNoContent)
	expectStatus(t, e.do(t, http.MethodDelete, common.PathWorkLogs+"/"+id, nil), http.StatusNotFound)

	expectStatus(t, e.do(t, http.MethodDelete, common.PathWorkLogs, nil), http.StatusNoContent)
	if n := len(e.svc.Store.List(worklog.Filter{})); n != 0 {
		t.Fatalf("clear left %d jobs", n)
	}
}

func makeMultipart(t *testing.T, fieldName, filename string, content []byte) (string, *bytes.Buffer) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.Copy(fw, bytes.NewReader(content)); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// CreateFormFile sends application/octet-stream, so the uploader falls back to the extension
	return w.FormDataContentType(), &b
}

func (e *testEnv) postScan(t *testing.T, async bool) *httptest.ResponseRecorder {
	t.Helper()
	ctype, body := makeMultipart(t, common.FormFieldFile, "car.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, common.PathScans, body)
	req.Header.Set("Content-Type", ctype)
	if async {
		req.Header.Set(common.HeaderPrefer, common.PreferRespondAsync)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func photoCount(t *testing.T, p *storage.Photos) int {
	t.Helper()
	entries, err := os.ReadDir(p.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("read photos: %v", err)
	}
	return len(entries)
}

func TestScan_SynchronousCreatesJob(t *testing.T) {
	e := newTestEnv(t, "ab-12-cd")

	rec := e.postScan(t, false)
	expectStatus(t, rec, http.StatusCreated)
	resp := decode(t, rec)
	if resp["stage"] != string(scan.StageCreated) || resp["plate"] != "AB-12-CD" {
		t.Fatalf("scan: %v", resp)
	}
	job, ok := resp["workLog"].(map[string]any)
	if !ok || job["photoUrl"] == nil {
		t.Fatalf("workLog missing or without photo: %v", resp["workLog"])
	}
	if photoCount(t, e.photos) != 1 {
		t.Fatalf("photo of the created job should be kept")
	}

	// the stored photo is served back
	url := job["photoUrl"].(string)
	expectStatus(t, e.do(t, http.MethodGet, url, nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, common.PathPhotos, nil), http.StatusNotFound)

	// same plate again is a duplicate pointing at the open job
	rec = e.postScan(t, false)
	expectStatus(t, rec, http.StatusConflict)
	existing, _ := decode(t, rec)["existing"].(map[string]any)
	if existing == nil || existing["id"] != job["id"] {
		t.Fatalf("duplicate should carry the open job: %s", rec.Body.String())
	}
	if photoCount(t, e.photos) != 1 {
		t.Fatalf("duplicate photo should be discarded")
	}
}

func TestScan_NoPlate(t *testing.T) {
	e := newTestEnv(t, "NULL")

	rec := e.postScan(t, false)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if photoCount(t, e.photos) != 0 {
		t.Fatalf("photo should be discarded when no plate is read")
	}
	if n := len(e.svc.Store.List(worklog.Filter{})); n != 0 {
		t.Fatalf("no job expected, got %d", n)
	}
}

func TestScan_MissingFile(t *testing.T) {
	e := newTestEnv(t, "AB-12")
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("other", "x")
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, common.PathScans, &b)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestScan_Asynchronous202(t *testing.T) {
	e := newTestEnv(t, "QQ-77")
	queue := scan.NewQueue(discardLogger(), 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx, e.svc.Processor); err != nil {
		t.Fatalf("queue start: %v", err)
	}
	defer queue.Shutdown(time.Second)
	e.svc.Queue = queue

	rec := e.postScan(t, true)
	expectStatus(t, rec, http.StatusAccepted)
	resp := decode(t, rec)
	su, ok := resp["statusUrl"].(string)
	if !ok || !strings.HasPrefix(su, common.PathScans) {
		t.Fatalf("statusUrl invalid: %v", resp["statusUrl"])
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = e.do(t, http.MethodGet, su, nil)
		expectStatus(t, rec, http.StatusOK)
		got := decode(t, rec)
		if got["stage"] == string(scan.StageCreated) {
			if _, ok := got["workLog"].(map[string]any); !ok {
				t.Fatalf("created scan should embed its work log: %v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not finish: %v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}

	expectStatus(t, e.do(t, http.MethodGet, common.PathScans+"/unknown", nil), http.StatusNotFound)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, "")
	e.svc.Cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	srv := NewHTTPServer(e.svc)

	req := httptest.NewRequest(http.MethodOptions, common.PathWorkLogs, nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestScan_Oversized413(t *testing.T) {
	e := newTestEnv(t, "AB-12")
	img := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 2*1024*1024)...)
	ctype, body := makeMultipart(t, common.FormFieldFile, "car.png", img)
	req := httptest.NewRequest(http.MethodPost, common.PathScans, body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
	if photoCount(t, e.photos) != 0 {
		t.Fatalf("oversized upload must not be stored")
	}
	if n := len(e.svc.Store.List(worklog.Filter{})); n != 0 {
		t.Fatalf("no job expected, got %d", n)
	}
}

func TestScan_WithoutPhotoStorage(t *testing.T) {
	e := newTestEnv(t, "AB-12")
	e.svc.Photos = nil
	srv := NewHTTPServer(e.svc)

	ctype, body := makeMultipart(t, common.FormFieldFile, "car.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, common.PathScans, body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusServiceUnavailable)
}
