package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatHandler "github.com/silvercoin/advisor/backend/internal/handler/chat"
	"github.com/silvercoin/advisor/backend/internal/logging"
	chatService "github.com/silvercoin/advisor/backend/internal/service/chat"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler runs chat turns over a websocket connection bound to one profile.
type Handler struct {
	pipeline chatHandler.Pipeline
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a websocket chat handler.
func New(pipeline chatHandler.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		logger:   logging.OrNop(logger).Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts GET /ws/chat/{profileID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{profileID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	credential := utils.BearerToken(r)

	// Reject bad credentials and unknown profiles before upgrading.
	if _, err := h.pipeline.History(r.Context(), credential, profileID); err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("profile_id", profileID))
	logger.Info("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	h.send(conn, "connected", map[string]string{"profileId": profileID})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read failed", zap.Error(err))
			}
			logger.Info("connection closed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch strings.ToLower(strings.TrimSpace(msg.Type)) {
		case "chat":
			h.handleChat(ctx, conn, credential, profileID, msg.Message)
		case "ping":
			h.send(conn, "pong", nil)
		default:
			h.sendError(conn, "unsupported message type")
		}
	}
}

func (h *Handler) handleChat(ctx context.Context, conn *websocket.Conn, credential, profileID, message string) {
	result, err := h.pipeline.Chat(ctx, chatService.Request{
		ProfileID:  profileID,
		Message:    message,
		Credential: credential,
	})
	if err != nil {
		status, text := utils.StatusFor(err)
		if status == http.StatusInternalServerError {
			text = err.Error()
		}
		h.sendError(conn, text)
		return
	}
	h.send(conn, "reply", chatHandler.NewResponse(result))
}

func (h *Handler) send(conn *websocket.Conn, kind string, data any) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, "error", map[string]string{"message": message})
}

// pingLoop keeps idle connections alive. WriteControl is safe to call
// concurrently with the reader goroutine's writes.
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
