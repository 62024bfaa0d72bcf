package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client implements llm.Client with the official OpenAI SDK.
type Client struct {
	api         openai.Client
	model       string
	instr       string
	temperature float64
}

// New creates the client. Extra options are appended after the config-derived ones.
func New(cfg config.OpenAISettings, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// the capture loop owns retry cadence
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}
	instr := strings.TrimSpace(cfg.Instructions)
	if instr == "" {
		instr = llm.DefaultInstructions
	}
	return &Client{
		api:         openai.NewClient(append(base, opts...)...),
		model:       cfg.Model,
		instr:       instr,
		temperature: cfg.Temperature,
	}
}

// ExtractPlate sends the image as a data URL content part and parses the reply.
func (c *Client) ExtractPlate(ctx context.Context, r io.Reader, mime string) (string, error) {
	img, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(img) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if strings.TrimSpace(mime) == "" {
		mime = "image/jpeg"
	}

	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img),
							Detail: "high",
						}),
						openai.TextContentPart(c.instr),
					},
				},
			},
		}},
	}

	resp, err := c.api.Chat.Completions.New(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty completion")
	}
	return llm.ParseReply(resp.Choices[0].Message.Content)
}
