package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jo-hoe/autoscan/internal/common"
	"github.com/jo-hoe/autoscan/internal/llm"
)

var (
	// ErrNoFrame means the source has nothing new to offer yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrGaveUp is returned once MaxAttempts frames were tried without a plate.
	ErrGaveUp = errors.New("no plate recognized")
)

// Frame is one captured still image.
type Frame struct {
	Data []byte
	Mime string
	Name string // source file name, if any
}

// FrameSource yields frames on demand.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

// Result is the outcome of an accepted capture.
type Result struct {
	Plate    string
	Frame    Frame
	Attempts int
}

// Session repeatedly captures frames and asks the recognizer for a plate until
// one is accepted. It never touches the work log store.
type Session struct {
	Log         *slog.Logger
	LLM         llm.Client
	Interval    time.Duration
	MaxAttempts int // 0 means until abandoned
}

func NewSession(log *slog.Logger, c llm.Client, interval time.Duration, maxAttempts int) *Session {
	if interval <= 0 {
		interval = common.DefaultCaptureInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{Log: log, LLM: c, Interval: interval, MaxAttempts: maxAttempts}
}

// Run captures a frame every Interval. The first attempt is immediate.
// Cancelling ctx abandons the session and returns ctx.Err().
func (s *Session) Run(ctx context.Context, src FrameSource) (Result, error) {
	limiter := rate.NewLimiter(rate.Every(s.Interval), 1)
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// Wait also fails early when the deadline would pass before the next token.
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		res, err := s.attempt(ctx, src)
		switch {
		case err == nil:
			res.Attempts = attempt
			s.Log.Info("plate accepted", "plate", res.Plate, "attempts", attempt)
			return res, nil
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case errors.Is(err, ErrNoFrame):
			s.Log.Debug("capture skipped", "attempt", attempt)
		case !errors.Is(err, llm.ErrNoPlate):
			s.Log.Warn("capture failed", "attempt", attempt, "err", err)
		}
		if s.MaxAttempts > 0 && attempt >= s.MaxAttempts {
			return Result{}, fmt.Errorf("%w after %d attempts", ErrGaveUp, attempt)
		}
	}
}

func (s *Session) attempt(ctx context.Context, src FrameSource) (Result, error) {
	frame, err := src.Capture(ctx)
	if err != nil {
		return Result{}, err
	}
	p, ok := llm.Detect(ctx, s.LLM, s.Log, bytes.NewReader(frame.Data), frame.Mime)
	if !ok {
		return Result{}, llm.ErrNoPlate
	}
	return Result{Plate: p, Frame: frame}, nil
}

// Once is the forced capture: a single frame, a single recognition call.
// It returns llm.ErrNoPlate when nothing was read.
func Once(ctx context.Context, log *slog.Logger, c llm.Client, src FrameSource) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{Log: log, LLM: c}
	res, err := s.attempt(ctx, src)
	if err != nil {
		return Result{}, err
	}
	res.Attempts = 1
	return res, nil
}
