package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lumen-backend/internal/llm"
	"lumen-backend/internal/store/filestore"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakeCompleter records every request and answers from respond, or echoes a fixed
// string per call.
type fakeCompleter struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	respond  func(req llm.CompletionRequest) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	if len(req.Messages) > 0 && req.Messages[0].Content == titleSystemPrompt {
		return `"A Bright Title"`, nil
	}
	return "assistant says hi", nil
}

func (f *fakeCompleter) calls() []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.CompletionRequest(nil), f.requests...)
}

type fakeImages struct {
	prompts []string
	err     error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return pngHeader, nil
}

var errProviderDown = errors.New("provider down")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	auth       *AuthService
	convs      *ConversationService
	completer  *fakeCompleter
	images     *fakeImages
	clock      *clock
	uploadsDir string
}

func newFixture(t *testing.T, caps llm.Capability) *fixture {
	t.Helper()
	s, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		completer:  &fakeCompleter{},
		images:     &fakeImages{},
		clock:      &clock{t: time.Date(2025, 11, 11, 9, 0, 0, 0, time.UTC)},
		uploadsDir: t.TempDir(),
	}
	locks := NewKeyedLock()
	d := NewDispatcher(f.completer, f.images, DispatcherConfig{
		SystemPrompt: "You are Lumen.",
		Capabilities: caps,
		UploadsDir:   f.uploadsDir,
	})
	f.auth = NewAuthService(s, locks)
	f.auth.now = f.clock.Now
	f.convs = NewConversationService(s, d, locks)
	f.convs.now = f.clock.Now
	return f
}

// signup creates an account and returns its token.
func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()
	res, err := f.auth.Login(context.Background(), username, "secret")
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Token
}
