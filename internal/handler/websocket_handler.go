package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"teamline-chat/internal/middleware"
	"teamline-chat/internal/service"
	ws "teamline-chat/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// In production, check against allowed origins
		return true
	},
}

// WebSocketHandler upgrades connections and subscribes them to a channel's
// event stream.
type WebSocketHandler struct {
	hub            *ws.Hub
	channelService *service.ChannelService
}

func NewWebSocketHandler(hub *ws.Hub, channelService *service.ChannelService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		channelService: channelService,
	}
}

// HandleConnection upgrades the request and registers the client with the hub.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	channelID := chi.URLParam(r, "channel_id")
	if _, err := uuid.Parse(channelID); err != nil {
		http.Error(w, `{"error":"Invalid channel ID"}`, http.StatusBadRequest)
		return
	}

	isMember, err := h.channelService.IsMember(r.Context(), channelID, userID)
	if err != nil || !isMember {
		http.Error(w, `{"error":"Not a member of this channel"}`, http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, userID, channelID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
