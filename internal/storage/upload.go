package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/autoscan/internal/common"
)

// ErrTooLarge is returned when an image exceeds the configured size limit.
var ErrTooLarge = errors.New("image too large")

// Photos stores captured plate images on disk and names them by URL.
type Photos struct {
	baseDir string
}

// Photo is one stored image.
type Photo struct {
	Path     string // absolute file path
	URL      string // opaque photoUrl recorded on the work log
	MimeType string
}

// Remove deletes the stored file.
func (p Photo) Remove() error {
	if p.Path == "" {
		return nil
	}
	return os.Remove(p.Path)
}

var allowedImageMimes = map[string]string{
	common.MimeImagePNG:  ".png",
	common.MimeImageJPEG: ".jpg",
	common.MimeImageJPG:  ".jpg",
}

// NewPhotos creates a photo store rooted at baseDir/photos.
func NewPhotos(baseDir string) *Photos {
	return &Photos{baseDir: filepath.Join(baseDir, common.PhotosDirName)}
}

// Dir returns the directory holding stored photos.
func (p *Photos) Dir() string { return p.baseDir }

// SaveMultipartImage validates and stores an uploaded image (png/jpg).
// The caller removes the photo when no work log ends up referencing it.
func (p *Photos) SaveMultipartImage(fileHeader *multipart.FileHeader, maxBytes int64) (Photo, error) {
	if fileHeader == nil {
		return Photo{}, fmt.Errorf("no file provided")
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	// Some clients set application/octet-stream for uploads; treat it as unknown and fall back to extension.
	if mimeType == "" || strings.EqualFold(strings.TrimSpace(mimeType), "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		mimeType = mime.TypeByExtension(ext)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return Photo{}, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	return p.save(src, mimeType, maxBytes)
}

// SaveBytes stores an in-memory image, sniffing the type when mimeType is empty.
func (p *Photos) SaveBytes(data []byte, mimeType string, maxBytes int64) (Photo, error) {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(data)
	}
	return p.save(strings.NewReader(string(data)), mimeType, maxBytes)
}

func (p *Photos) save(src io.Reader, mimeType string, maxBytes int64) (Photo, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext, ok := allowedImageMimes[mt]
	if !ok {
		return Photo{}, fmt.Errorf("unsupported content type: %s", mimeType)
	}

	if err := os.MkdirAll(p.baseDir, 0o750); err != nil {
		return Photo{}, fmt.Errorf("ensure photos dir: %w", err)
	}

	filename := randomHex(16) + ext
	dstPath := filepath.Join(p.baseDir, filename)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) // #nosec G304 - random name under our own dir
	if err != nil {
		return Photo{}, fmt.Errorf("create photo file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(dst, reader)
	if err != nil {
		_ = os.Remove(dstPath)
		return Photo{}, fmt.Errorf("copy photo: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		_ = os.Remove(dstPath)
		return Photo{}, fmt.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(maxBytes)))
	}
	if n == 0 {
		_ = os.Remove(dstPath)
		return Photo{}, fmt.Errorf("image is empty")
	}

	return Photo{
		Path:     dstPath,
		URL:      path.Join(common.PathPhotos, filename),
		MimeType: mt,
	}, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
