package capture

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// FileSource returns the same image file on every capture.
type FileSource struct {
	Path string
}

func (f FileSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	return readFrame(f.Path)
}

// DirSource watches a directory and yields its newest image, once per change.
type DirSource struct {
	Dir string

	mu       sync.Mutex
	lastName string
	lastMod  time.Time
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (d *DirSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame dir: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = e.Name(), info.ModTime()
		}
	}
	if newest == "" {
		return Frame{}, ErrNoFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if newest == d.lastName && newestMod.Equal(d.lastMod) {
		return Frame{}, ErrNoFrame
	}
	frame, err := readFrame(filepath.Join(d.Dir, newest))
	if err != nil {
		return Frame{}, err
	}
	d.lastName, d.lastMod = newest, newestMod
	return frame, nil
}

func readFrame(path string) (Frame, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied image path
	if err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Frame{Data: data, Mime: http.DetectContentType(data), Name: filepath.Base(path)}, nil
}
