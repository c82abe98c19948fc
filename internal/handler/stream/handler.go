package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatHandler "github.com/silvercoin/advisor/backend/internal/handler/chat"
	"github.com/silvercoin/advisor/backend/internal/logging"
	chatService "github.com/silvercoin/advisor/backend/internal/service/chat"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Pipeline runs one chat turn and reports stage events.
type Pipeline interface {
	Chat(ctx context.Context, req chatService.Request, opts ...chatService.Option) (*chatService.Result, error)
}

// Handler streams the progress of a chat turn as Server-Sent Events.
type Handler struct {
	pipeline Pipeline
	logger   *zap.Logger
}

// New creates a stream handler.
func New(pipeline Pipeline, logger *zap.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logging.OrNop(logger).Named("stream")}
}

// RegisterRoutes mounts GET /stream/{profileID}?message=...
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{profileID}", h.handleStream)
}

type stagePayload struct {
	Stage string `json:"stage"`
}

type sentimentPayload struct {
	Sentiment  string   `json:"sentiment"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// handleStream opens the event stream only after authentication and profile
// resolution succeed, so those failures are plain JSON responses.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	profileID := chi.URLParam(r, "profileID")

	opened := false
	send := func(event string, data any) {
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			h.logger.Debug("sse write failed", zap.String("event", event), zap.Error(err))
		}
	}

	observer := func(ev chatService.Event) {
		switch ev.Stage {
		case chatService.StageAuthenticating, chatService.StageResolvingProfile, chatService.StageError:
			return
		}
		if !opened {
			utils.SetupSSEHeaders(w)
			w.WriteHeader(http.StatusOK)
			opened = true
		}
		send("stage", stagePayload{Stage: string(ev.Stage)})
		if ev.Stage == chatService.StageBuilding && ev.Sentiment != nil {
			send("sentiment", sentimentPayload{
				Sentiment:  string(ev.Sentiment.Label),
				Confidence: ev.Sentiment.Confidence,
				Tags:       ev.Tags,
			})
		}
	}

	result, err := h.pipeline.Chat(r.Context(), chatService.Request{
		ProfileID:  profileID,
		Message:    r.URL.Query().Get("message"),
		Credential: utils.BearerToken(r),
	}, chatService.WithObserver(observer))
	if err != nil {
		if !opened {
			chatHandler.RespondChatError(w, err)
			return
		}
		send("error", map[string]string{"error": "chat failed"})
		return
	}

	send("message", chatHandler.NewResponse(result))
	send("end", map[string]string{"profileId": result.ProfileID})
	h.logger.Debug("stream finished", zap.String("profile_id", result.ProfileID))
}
