package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/silvercoin/advisor/backend/internal/model/profile"
	chatService "github.com/silvercoin/advisor/backend/internal/service/chat"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Pipeline is the chat orchestrator used by the handlers.
type Pipeline interface {
	Chat(ctx context.Context, req chatService.Request, opts ...chatService.Option) (*chatService.Result, error)
	History(ctx context.Context, credential, profileID string) ([]profile.ConversationTurn, error)
}

// Handler serves the chat and history endpoints.
type Handler struct {
	pipeline Pipeline
}

// New creates a chat handler.
func New(pipeline Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/{profileID}", h.handleChat)
	r.Get("/conversation_history/{profileID}", h.handleHistory)
}

// Response is the body returned by the chat endpoint. Reply and
// SentimentLabel repeat Message and Sentiment for older clients.
type Response struct {
	Message        string   `json:"message"`
	Sentiment      string   `json:"sentiment"`
	Confidence     float64  `json:"confidence"`
	Tags           []string `json:"tags"`
	HistorySaved   bool     `json:"historySaved"`
	Fallback       bool     `json:"fallback"`
	Reply          string   `json:"reply"`
	SentimentLabel string   `json:"sentimentLabel"`
}

// NewResponse converts a pipeline result into the wire shape.
func NewResponse(result *chatService.Result) Response {
	label := string(result.Sentiment.Label)
	return Response{
		Message:        result.Reply,
		Sentiment:      label,
		Confidence:     result.Sentiment.Confidence,
		Tags:           result.Tags,
		HistorySaved:   result.HistorySaved,
		Fallback:       result.Fallback,
		Reply:          result.Reply,
		SentimentLabel: label,
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profileID := chi.URLParam(r, "profileID")
	if profileID == "" {
		profileID = payload.ProfileID
	}

	result, err := h.pipeline.Chat(r.Context(), chatService.Request{
		ProfileID:  profileID,
		Message:    payload.Message,
		Credential: utils.BearerToken(r),
	})
	if err != nil {
		RespondChatError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, NewResponse(result))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.pipeline.History(r.Context(), utils.BearerToken(r), chi.URLParam(r, "profileID"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

// RespondChatError writes the status for a pipeline error.
func RespondChatError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrMessageRequired) || errors.Is(err, chatService.ErrProfileIDRequired) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondServiceError(w, err)
}
