package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"teamline-chat/internal/middleware"
	"teamline-chat/internal/service"
)

// ChannelHandler handles channel endpoints.
type ChannelHandler struct {
	channelService *service.ChannelService
}

func NewChannelHandler(channelService *service.ChannelService) *ChannelHandler {
	return &ChannelHandler{
		channelService: channelService,
	}
}

// CreateChannelRequest represents a channel creation request.
type CreateChannelRequest struct {
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
}

// List retrieves the channels of a team.
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("team_id")
	if _, err := uuid.Parse(teamID); err != nil {
		http.Error(w, `{"error":"Valid team_id required"}`, http.StatusBadRequest)
		return
	}

	channels, err := h.channelService.ListChannels(r.Context(), teamID)
	if err != nil {
		http.Error(w, `{"error":"Failed to retrieve channels"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
	})
}

// Create creates a new channel with the caller as its first member.
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(req.TeamID); err != nil {
		http.Error(w, `{"error":"Valid team_id required"}`, http.StatusBadRequest)
		return
	}

	channel, err := h.channelService.CreateChannel(r.Context(), req.TeamID, req.Name, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

// Join adds the caller to a channel and records the join as a system message.
func (h *ChannelHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return
	}

	channelID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(channelID); err != nil {
		http.Error(w, `{"error":"Invalid channel ID"}`, http.StatusBadRequest)
		return
	}

	if err := h.channelService.JoinChannel(r.Context(), channelID, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
