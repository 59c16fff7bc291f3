package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lumen-backend/internal/crypto"
	api_models "lumen-backend/internal/models"
	"lumen-backend/pkg/httputil"

	"github.com/rs/zerolog/log"
)

// ConversationService defines the interface expected from the conversation service.
type ConversationService interface {
	List(ctx context.Context, username string) ([]api_models.ConversationSummary, error)
	Get(ctx context.Context, username, id string) ([]api_models.Message, error)
	Exists(ctx context.Context, username, id string) error
	Create(ctx context.Context, username string) (string, error)
	Rename(ctx context.Context, username, id, title string) error
	AppendExchange(ctx context.Context, username, id, text string) (string, error)
	AppendImageExchange(ctx context.Context, username, id, path string) (string, error)
}

type ConversationHandlers struct {
	service    ConversationService
	uploadsDir string
}

func NewConversationHandlers(service ConversationService, uploadsDir string) *ConversationHandlers {
	return &ConversationHandlers{
		service:    service,
		uploadsDir: uploadsDir,
	}
}

// HandleListConversations handles POST /conversations.
func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), username)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

// HandleGetConversation handles POST /conversation.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	var req api_models.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	msgs, err := h.service.Get(r.Context(), username, req.ChatID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, msgs)
}

// HandleCreateConversation handles POST /new-conversation.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	id, err := h.service.Create(r.Context(), username)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.NewConversationResponse{ChatID: id})
}

// HandleRenameConversation handles POST /rename-conversation.
func (h *ConversationHandlers) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	var req api_models.RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.service.Rename(r.Context(), username, req.ChatID, req.NewTitle); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.OKResponse{OK: true})
}

// HandleChat handles POST /chat.
func (h *ConversationHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	var req api_models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	reply, err := h.service.AppendExchange(r.Context(), username, req.ChatID, req.Message)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.ReplyResponse{Reply: reply})
}

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

// HandleImage handles the multipart POST /image. The session gate has already
// parsed the form.
func (h *ConversationHandlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFrom(w, r)
	if !ok {
		return
	}
	chatID := r.FormValue("chat_id")

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "An image file is required")
		return
	}
	defer file.Close()

	// Nothing is written for a conversation the user does not own.
	if err := h.service.Exists(r.Context(), username, chatID); err != nil {
		RespondServiceError(w, r, err)
		return
	}

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to store upload")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	reply, err := h.service.AppendImageExchange(r.Context(), username, chatID, path)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.ReplyResponse{Reply: reply})
}

// saveUpload stores src as img_<16 hex>.<ext> and returns the path.
func (h *ConversationHandlers) saveUpload(src io.Reader, clientName string) (string, error) {
	id, err := crypto.RandomHex(8)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("img_%s.%s", id, uploadExt(clientName))

	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(h.uploadsDir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", errors.Join(err, os.Remove(path))
	}
	return path, nil
}

// uploadExt keeps a short alphanumeric extension from the client file name.
func uploadExt(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !extPattern.MatchString(ext) {
		return "bin"
	}
	return ext
}
