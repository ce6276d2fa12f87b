package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"teamline-chat/internal/domain"
	"teamline-chat/internal/middleware"
	"teamline-chat/internal/service"
)

const defaultFetchLimit = 30

// MessageHandler handles message retrieval and write endpoints.
type MessageHandler struct {
	messages      *service.MessageService
	channels      *service.ChannelService
	permissions   *service.PermissionService
	validate      *validator.Validate
	maxFetchLimit int
}

func NewMessageHandler(messages *service.MessageService, channels *service.ChannelService,
	permissions *service.PermissionService, maxFetchLimit int) *MessageHandler {
	return &MessageHandler{
		messages:      messages,
		channels:      channels,
		permissions:   permissions,
		validate:      validator.New(),
		maxFetchLimit: maxFetchLimit,
	}
}

// listMessagesQuery carries the parsed query string of a window fetch.
type listMessagesQuery struct {
	Direction string `validate:"omitempty,oneof=up down"`
	AnchorID  string `validate:"omitempty,len=26,alphanum"`
	MinimumID string `validate:"omitempty,len=26,alphanum"`
	Since     int64  `validate:"min=0"`
	Limit     int    `validate:"min=1"`
}

// PostMessageRequest represents a message creation request.
type PostMessageRequest struct {
	TempID string `json:"temp_id" validate:"omitempty,max=64"`
	Type   string `json:"type" validate:"omitempty,oneof=text"`
	Text   string `json:"text" validate:"required,max=4000"`
}

// EditMessageRequest represents a message edit request.
type EditMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// List retrieves a window of messages for a channel, optionally combined with
// a delta sync when a since watermark is supplied.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	_, channel, ok := h.authorize(w, r, domain.PermMessagesView)
	if !ok {
		return
	}

	query, err := h.parseListQuery(r)
	if err != nil {
		http.Error(w, `{"error":"Invalid query parameters"}`, http.StatusBadRequest)
		return
	}

	window, err := h.messages.FetchWindow(r.Context(), service.WindowOptions{
		ChannelID: channel.ID,
		Direction: domain.Direction(query.Direction),
		AnchorID:  query.AnchorID,
		MinimumID: query.MinimumID,
		Since:     query.Since,
		Limit:     query.Limit,
	})
	if err != nil {
		http.Error(w, `{"error":"Failed to retrieve messages"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, window)
}

func (h *MessageHandler) parseListQuery(r *http.Request) (*listMessagesQuery, error) {
	q := r.URL.Query()

	query := &listMessagesQuery{
		Direction: q.Get("direction"),
		AnchorID:  q.Get("anchor_id"),
		MinimumID: q.Get("minimum_id"),
		Limit:     defaultFetchLimit,
	}

	if raw := q.Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		query.Since = since
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		query.Limit = limit
	}
	// A limit above the configured maximum is the caller's mistake, not a
	// hint to serve less.
	if query.Limit > h.maxFetchLimit {
		return nil, domain.ErrInvalidInput
	}

	if err := h.validate.Struct(query); err != nil {
		return nil, err
	}
	return query, nil
}

// Post creates a new message in a channel.
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	userID, channel, ok := h.authorize(w, r, domain.PermMessagesSend)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	msg := &domain.Message{
		TempID:    req.TempID,
		ChannelID: channel.ID,
		UserID:    userID,
		Type:      req.Type,
		Text:      req.Text,
	}

	if err := h.messages.Post(r.Context(), msg); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Edit updates the text of an existing message. Allowed for the author, or
// for members holding the edit permission.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	_, channel, msg, ok := h.authorizeMessage(w, r, domain.PermMessagesEdit)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	updated, err := h.messages.Edit(r.Context(), channel.ID, msg.ID, req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete soft-deletes a message. Allowed for the author, or for members
// holding the delete permission.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, channel, msg, ok := h.authorizeMessage(w, r, domain.PermMessagesDelete)
	if !ok {
		return
	}

	deleted, err := h.messages.Delete(r.Context(), channel.ID, msg.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleted)
}

// authorize resolves the channel from the URL and verifies that the caller is
// an authenticated member holding the given permission.
func (h *MessageHandler) authorize(w http.ResponseWriter, r *http.Request, permission string) (string, *domain.Channel, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return "", nil, false
	}

	channelID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(channelID); err != nil {
		http.Error(w, `{"error":"Invalid channel ID"}`, http.StatusBadRequest)
		return "", nil, false
	}

	channel, err := h.channels.GetChannel(r.Context(), channelID)
	if err != nil {
		writeDomainError(w, err)
		return "", nil, false
	}

	isMember, err := h.channels.IsMember(r.Context(), channelID, userID)
	if err != nil {
		http.Error(w, `{"error":"Failed to check membership"}`, http.StatusInternalServerError)
		return "", nil, false
	}
	if !isMember {
		http.Error(w, `{"error":"Not a member of this channel"}`, http.StatusForbidden)
		return "", nil, false
	}

	allowed, err := h.permissions.HasPermission(r.Context(), channel.TeamID, channel.ID, userID, permission)
	if err != nil {
		http.Error(w, `{"error":"Failed to check permissions"}`, http.StatusInternalServerError)
		return "", nil, false
	}
	if !allowed {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusForbidden)
		return "", nil, false
	}

	return userID, channel, true
}

// authorizeMessage extends authorize for mutations of an existing message:
// authors act on their own messages with only the send permission; everyone
// else needs the stated moderation permission.
func (h *MessageHandler) authorizeMessage(w http.ResponseWriter, r *http.Request, permission string) (string, *domain.Channel, *domain.Message, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"User not authenticated"}`, http.StatusUnauthorized)
		return "", nil, nil, false
	}

	channelID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(channelID); err != nil {
		http.Error(w, `{"error":"Invalid channel ID"}`, http.StatusBadRequest)
		return "", nil, nil, false
	}
	messageID := chi.URLParam(r, "message_id")
	if messageID == "" {
		http.Error(w, `{"error":"Message ID required"}`, http.StatusBadRequest)
		return "", nil, nil, false
	}

	channel, err := h.channels.GetChannel(r.Context(), channelID)
	if err != nil {
		writeDomainError(w, err)
		return "", nil, nil, false
	}

	isMember, err := h.channels.IsMember(r.Context(), channelID, userID)
	if err != nil {
		http.Error(w, `{"error":"Failed to check membership"}`, http.StatusInternalServerError)
		return "", nil, nil, false
	}
	if !isMember {
		http.Error(w, `{"error":"Not a member of this channel"}`, http.StatusForbidden)
		return "", nil, nil, false
	}

	msg, err := h.messages.GetMessage(r.Context(), channelID, messageID)
	if err != nil {
		writeDomainError(w, err)
		return "", nil, nil, false
	}

	if msg.UserID != userID {
		allowed, err := h.permissions.HasPermission(r.Context(), channel.TeamID, channel.ID, userID, permission)
		if err != nil {
			http.Error(w, `{"error":"Failed to check permissions"}`, http.StatusInternalServerError)
			return "", nil, nil, false
		}
		if !allowed {
			http.Error(w, `{"error":"Permission denied"}`, http.StatusForbidden)
			return "", nil, nil, false
		}
	}

	return userID, channel, msg, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusNotFound)
	case errors.Is(err, domain.ErrNotMember):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	default:
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
	}
}
