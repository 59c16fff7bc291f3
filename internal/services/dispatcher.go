package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lumen-backend/internal/llm"
	"lumen-backend/internal/logging"
	"lumen-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	replyTemperature   = 0.8
	titleTemperature   = 0.5
	titleMaxTokens     = 20
	imagineTemperature = 1.0

	titleSystemPrompt   = "Generate a short, elegant title."
	describePrompt      = "Describe in detail what you see in this image."
	imagineSystemPrompt = "You CANNOT see images. But pretend you can, using maximum creativity."
)

// DispatcherConfig carries what the dispatcher needs besides the model clients.
type DispatcherConfig struct {
	SystemPrompt string
	Capabilities llm.Capability // resolved once for the configured text model
	UploadsDir   string         // generated images are written here
}

// Dispatcher turns conversation state into model calls.
type Dispatcher struct {
	completer    llm.Completer
	images       llm.ImageGenerator
	systemPrompt string
	vision       bool
	uploadsDir   string
	logger       zerolog.Logger
}

func NewDispatcher(completer llm.Completer, images llm.ImageGenerator, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		completer:    completer,
		images:       images,
		systemPrompt: cfg.SystemPrompt,
		vision:       cfg.Capabilities.Has(llm.CapVision),
		uploadsDir:   cfg.UploadsDir,
		logger:       logging.Component("dispatcher"),
	}
}

// Vision reports whether images are sent to the model or only described by name.
func (d *Dispatcher) Vision() bool {
	return d.vision
}

// Reply answers userText given the prior messages of the conversation. A non-empty
// hint is added as a system message right before the user text.
func (d *Dispatcher) Reply(ctx context.Context, history []models.Message, hint, userText string) (string, error) {
	msgs := make([]llm.ChatMessage, 0, len(history)+3)
	msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: d.systemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.ChatMessage{Role: role, Content: m.Text})
	}
	if hint != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: hint})
	}
	msgs = append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: userText})

	return d.complete(ctx, "reply", llm.CompletionRequest{Messages: msgs, Temperature: replyTemperature})
}

// Title produces a short conversation title from text.
func (d *Dispatcher) Title(ctx context.Context, text string) (string, error) {
	out, err := d.complete(ctx, "title", llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: titleSystemPrompt},
			{Role: llm.RoleUser, Content: text},
		},
		Temperature: titleTemperature,
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return cleanTitle(out), nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")
	return strings.TrimSpace(s)
}

// DescribeImage describes the stored upload at path and generates a new artwork from
// the description. Without vision support the image bytes are never read and the
// description is invented from the file name.
func (d *Dispatcher) DescribeImage(ctx context.Context, path string) (string, error) {
	if d.vision {
		desc, err := d.see(ctx, path)
		if err != nil {
			return "", err
		}
		file, err := d.generate(ctx, "Create an artwork inspired by this image: "+desc)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📸 **Image description:**\n%s\n\n🎨 **New generated image:**\n[generated-image:%s]", desc, file), nil
	}

	desc, err := d.imagine(ctx, filepath.Base(path))
	if err != nil {
		return "", err
	}
	file, err := d.generate(ctx, "Create an artwork based on this imaginary description: "+desc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📸 **Imagined description:**\n%s\n\n🎨 **Image generated from imagination:**\n[generated-image:%s]", desc, file), nil
}

func (d *Dispatcher) see(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	url := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(data), base64.StdEncoding.EncodeToString(data))

	return d.complete(ctx, "describe", llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: describePrompt, ImageURL: url}},
	})
}

func (d *Dispatcher) imagine(ctx context.Context, name string) (string, error) {
	return d.complete(ctx, "imagine", llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: imagineSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("The user sent an image named '%s'. Imaginatively describe what MIGHT be in it.", name)},
		},
		Temperature: imagineTemperature,
	})
}

// generate writes the generated image to the uploads dir and returns its file name.
func (d *Dispatcher) generate(ctx context.Context, prompt string) (string, error) {
	data, err := d.images.GenerateImage(ctx, prompt)
	if err != nil {
		d.logger.Error().Err(err).Msg("image generation failed")
		return "", fmt.Errorf("%w: image generation: %v", ErrUpstream, err)
	}

	name := "gen_" + uuid.NewString() + ".png"
	if err := os.MkdirAll(d.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.uploadsDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write generated image: %w", err)
	}
	d.logger.Debug().Str("file", name).Int("bytes", len(data)).Msg("generated image saved")
	return name, nil
}

func (d *Dispatcher) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	out, err := d.completer.Complete(ctx, req)
	if err != nil {
		d.logger.Error().Err(err).Str("op", op).Msg("completion failed")
		return "", fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
	}
	return out, nil
}
