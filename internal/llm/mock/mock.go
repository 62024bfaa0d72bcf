package mock

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client is an offline recognizer that answers with a fixed plate.
type Client struct {
	delay time.Duration
	reply string
}

func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, reply: cfg.Plate}
}

// ExtractPlate drains r, waits the configured delay, and returns the configured plate.
func (c *Client) ExtractPlate(ctx context.Context, r io.Reader, mime string) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	return llm.ParseReply(c.reply)
}
