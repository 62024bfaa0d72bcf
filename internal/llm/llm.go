package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/jo-hoe/autoscan/internal/plate"
)

// ErrNoPlate means the model saw no readable license plate.
var ErrNoPlate = errors.New("no plate detected")

// DefaultInstructions is the prompt sent alongside the image.
const DefaultInstructions = "Extract the car license plate number from this image. Only return the plate characters (letters, numbers, and dashes), nothing else. If multiple plates are visible, return the most prominent one. Return 'NULL' if no plate is detected."

// Client defines the capability to read a license plate from an image.
type Client interface {
	// ExtractPlate reads an image from r with the given mime type and returns
	// the normalized plate, or ErrNoPlate.
	ExtractPlate(ctx context.Context, r io.Reader, mime string) (string, error)
}

// ParseReply turns a raw model answer into a normalized plate.
func ParseReply(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	s = strings.Trim(s, "`'\"")
	if s == "" || strings.EqualFold(s, "NULL") {
		return "", ErrNoPlate
	}
	p := plate.Normalize(s)
	if p == "" || strings.Trim(p, "-") == "" {
		return "", ErrNoPlate
	}
	return p, nil
}

// Detect calls c and reports whether a plate was found. Every failure,
// including timeouts, reads as "not found"; non-ErrNoPlate errors are logged.
func Detect(ctx context.Context, c Client, log *slog.Logger, r io.Reader, mime string) (string, bool) {
	p, err := c.ExtractPlate(ctx, r, mime)
	if err != nil {
		if !errors.Is(err, ErrNoPlate) && log != nil {
			log.Warn("plate recognition failed", "err", err)
		}
		return "", false
	}
	return p, true
}
