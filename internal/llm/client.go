// Package llm talks to an OpenAI-compatible provider for text completion and
// image generation.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Roles used in prompt contexts.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// DefaultImageSize is the resolution requested from the image model.
const DefaultImageSize = openai.CreateImageSize1024x1024

var (
	ErrEmptyResponse = errors.New("provider returned no content")
	ErrBadImage      = errors.New("provider returned an undecodable image")
)

// ChatMessage is one entry of a prompt context. When ImageURL is set the message is
// sent as image + text parts.
type ChatMessage struct {
	Role     string
	Content  string
	ImageURL string
}

// CompletionRequest is a single text-completion call. Zero MaxTokens means no limit.
type CompletionRequest struct {
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// Completer produces a text completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageGenerator turns a prompt into encoded image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Config selects the provider endpoint and models.
type Config struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
}

// Client implements Completer and ImageGenerator on top of go-openai.
type Client struct {
	api        *openai.Client
	textModel  string
	imageModel string
}

var (
	_ Completer      = (*Client)(nil)
	_ ImageGenerator = (*Client)(nil)
)

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:        openai.NewClientWithConfig(oc),
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
	}
}

// Complete sends req to the chat completions endpoint and returns the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m))
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.textModel,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", c.textModel, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion (%s): %w", c.textModel, ErrEmptyResponse)
	}

	log.Debug().
		Str("model", c.textModel).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion")
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage asks the image model for one base64-encoded image and decodes it.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           DefaultImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation (%s): %w", c.imageModel, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation (%s): %w", c.imageModel, ErrEmptyResponse)
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return img, nil
}

func toOpenAIMessage(m ChatMessage) openai.ChatCompletionMessage {
	if m.ImageURL == "" {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionMessage{
		Role: m.Role,
		MultiContent: []openai.ChatMessagePart{
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: m.ImageURL, Detail: openai.ImageURLDetailAuto},
			},
			{
				Type: openai.ChatMessagePartTypeText,
				Text: m.Content,
			},
		},
	}
}
