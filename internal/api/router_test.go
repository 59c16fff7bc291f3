package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lumen-backend/internal/config"
	"lumen-backend/internal/handlers"
	"lumen-backend/internal/llm"
	"lumen-backend/internal/models"
	"lumen-backend/internal/services"
	"lumen-backend/internal/store/filestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	fail bool
}

func (s *stubModel) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	if s.fail {
		return "", assert.AnError
	}
	if req.MaxTokens > 0 {
		return "Greetings", nil
	}
	return "echo: " + req.Messages[len(req.Messages)-1].Content, nil
}

func (s *stubModel) GenerateImage(context.Context, string) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

type testServer struct {
	srv   *httptest.Server
	model *stubModel
	cfg   *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		UploadsDir:         filepath.Join(root, "uploads"),
		StaticDir:          filepath.Join(root, "static"),
		MaxUploadBytes:     1 << 20,
		CORSAllowedOrigins: []string{"*"},
	}
	require.NoError(t, os.MkdirAll(cfg.StaticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<html>lumen</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "app.js"), []byte("console.log('lumen')"), 0o644))

	s, err := filestore.New(filepath.Join(root, "data"))
	require.NoError(t, err)

	model := &stubModel{}
	locks := services.NewKeyedLock()
	authSvc := services.NewAuthService(s, locks)
	dispatcher := services.NewDispatcher(model, model, services.DispatcherConfig{
		SystemPrompt: "You are Lumen.",
		Capabilities: llm.CapText,
		UploadsDir:   cfg.UploadsDir,
	})
	convSvc := services.NewConversationService(s, dispatcher, locks)

	router := NewRouter(RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authSvc),
		ConversationHandler: handlers.NewConversationHandlers(convSvc, cfg.UploadsDir),
		PageHandler:         handlers.NewPageHandler(cfg.StaticDir),
		Sessions:            authSvc,
		Store:               s,
		Config:              cfg,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, model: model, cfg: cfg}
}

func (ts *testServer) post(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func (ts *testServer) login(t *testing.T, username, password string) models.LoginResponse {
	t.Helper()
	status, body := ts.post(t, "/login", models.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, status, string(body))
	var out models.LoginResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestLoginAndSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	first := ts.login(t, "alice", "pw")
	assert.Equal(t, "Account created!", first.Reply)
	second := ts.login(t, "alice", "pw")
	assert.Equal(t, "Welcome, alice!", second.Reply)

	status, _ := ts.post(t, "/validate-session", models.SessionRequest{Username: "alice", Token: first.Token})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := ts.post(t, "/validate-session", models.SessionRequest{Username: "alice", Token: second.Token})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	status, _ = ts.post(t, "/validate-session", models.SessionRequest{Username: "bob", Token: second.Token})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.post(t, "/login", models.LoginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.post(t, "/login", models.LoginRequest{Username: "", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.login(t, "alice", "pw").Token
	sess := models.SessionRequest{Username: "alice", Token: tok}

	status, body := ts.post(t, "/new-conversation", sess)
	require.Equal(t, http.StatusOK, status)
	var created models.NewConversationResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ChatID)

	status, body = ts.post(t, "/chat", models.ChatRequest{SessionRequest: sess, ChatID: created.ChatID, Message: "hi there"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"reply":"echo: hi there"}`, string(body))

	status, body = ts.post(t, "/conversations", sess)
	require.Equal(t, http.StatusOK, status)
	var list []models.ConversationSummary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, models.ConversationSummary{ID: created.ChatID, Title: "Greetings", Preview: "echo: hi there"}, list[0])

	status, body = ts.post(t, "/conversation", models.ConversationRequest{SessionRequest: sess, ChatID: created.ChatID})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"role":"user","text":"hi there"},{"role":"assistant","text":"echo: hi there"}]`, string(body))

	status, _ = ts.post(t, "/rename-conversation", models.RenameConversationRequest{SessionRequest: sess, ChatID: created.ChatID, NewTitle: "Renamed"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.post(t, "/conversation", models.ConversationRequest{SessionRequest: sess, ChatID: "c_nope"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.post(t, "/chat", models.ChatRequest{SessionRequest: models.SessionRequest{Username: "alice", Token: "bad"}, ChatID: created.ChatID, Message: "x"})
	assert.Equal(t, http.StatusForbidden, status)

	ts.model.fail = true
	status, _ = ts.post(t, "/chat", models.ChatRequest{SessionRequest: sess, ChatID: created.ChatID, Message: "again"})
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestSessionGateRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.srv.URL+"/conversations", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postImage(t *testing.T, ts *testServer, fields map[string]string, filename string, data []byte) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.srv.URL+"/image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

func TestImageUpload(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.login(t, "alice", "pw").Token
	sess := models.SessionRequest{Username: "alice", Token: tok}
	_, body := ts.post(t, "/new-conversation", sess)
	var created models.NewConversationResponse
	require.NoError(t, json.Unmarshal(body, &created))

	status, body := postImage(t, ts, map[string]string{"username": "alice", "token": tok, "chat_id": created.ChatID}, "cat.png", []byte("pixels"))
	require.Equal(t, http.StatusOK, status, string(body))
	var reply models.ReplyResponse
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Contains(t, reply.Reply, "[generated-image:gen_")

	uploads, err := filepath.Glob(filepath.Join(ts.cfg.UploadsDir, "img_*.png"))
	require.NoError(t, err)
	require.Len(t, uploads, 1)

	resp, err := http.Get(ts.srv.URL + "/uploads/" + filepath.Base(uploads[0]))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unknown conversation: rejected before anything is stored.
	status, _ = postImage(t, ts, map[string]string{"username": "alice", "token": tok, "chat_id": "c_nope"}, "dog.png", []byte("pixels"))
	assert.Equal(t, http.StatusNotFound, status)
	uploads, err = filepath.Glob(filepath.Join(ts.cfg.UploadsDir, "img_*"))
	require.NoError(t, err)
	assert.Len(t, uploads, 1)

	status, _ = postImage(t, ts, map[string]string{"username": "alice", "token": "bad", "chat_id": created.ChatID}, "dog.png", []byte("pixels"))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/static/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/static/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no directory listings")
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return assert.AnError }

func TestHealthReportsStoreFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(downStore{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	healthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLoginPaddedUsernameAndLongPassword(t *testing.T) {
	ts := newTestServer(t)

	res := ts.login(t, " alice ", "pw")
	assert.Equal(t, "Account created!", res.Reply)

	status, body := ts.post(t, "/conversations", models.SessionRequest{Username: " alice ", Token: res.Token})
	assert.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `[]`, string(body))

	again := ts.login(t, "alice", "pw")
	assert.Equal(t, "Welcome, alice!", again.Reply)

	status, _ = ts.post(t, "/login", models.LoginRequest{Username: "bob", Password: strings.Repeat("p", 73)})
	assert.Equal(t, http.StatusBadRequest, status)
}
