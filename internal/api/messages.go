package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/pkg/router"
	"github.com/putto11262002/roomsync/store"
)

type MessageHandler struct {
	store  *store.Store
	tokens Tokens
}

func NewMessageHandler(s *store.Store, tokens Tokens) *MessageHandler {
	return &MessageHandler{store: s, tokens: tokens}
}

// GetMessagesHandler lists the visible messages of the room, or every message with ?all=true.
func (h *MessageHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := chi.URLParam(r, "roomID")
	if r.URL.Query().Get("all") == "true" {
		return WriteJsonResponse(w, h.store.AllMessages(roomID))
	}
	return WriteJsonResponse(w, h.store.GetMessages(roomID))
}

func (h *MessageHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	var payload store.SendMessageInput
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	payload.RoomID = chi.URLParam(r, "roomID")
	sender, err := userOr(r, h.tokens, payload.SenderID)
	if err != nil {
		return err
	}
	payload.SenderID = sender

	msg, err := h.store.SendMessage(payload)
	if err != nil {
		return err
	}
	return WriteJsonResponseWithStatusCode(w, msg, http.StatusCreated)
}

func (h *MessageHandler) UpdateMessageHandler(w http.ResponseWriter, r *http.Request) error {
	var payload models.MessagePatch
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.UpdateMessage(chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID"), payload); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *MessageHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.DeleteMessage(chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type ReactionPayload struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"userId"`
}

func (h *MessageHandler) ToggleReactionHandler(w http.ResponseWriter, r *http.Request) error {
	var payload ReactionPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if payload.Emoji == "" {
		return router.NewJsonError(http.StatusBadRequest, "emoji is required")
	}
	userID, err := userOr(r, h.tokens, payload.UserID)
	if err != nil {
		return err
	}
	msg, err := h.store.ToggleReaction(chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID"), payload.Emoji, userID)
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, msg)
}

func (h *MessageHandler) HideMessageHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.HideForUser(chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *MessageHandler) UnhideMessageHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.UnhideForUser(chi.URLParam(r, "roomID"), chi.URLParam(r, "messageID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *MessageHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) error {
	var payload UserPayload
	if err := DecodeJson(r.Body, &payload, true); err != nil {
		return err
	}
	userID, err := userOr(r, h.tokens, payload.UserID)
	if err != nil {
		return err
	}
	if err := h.store.MarkRead(chi.URLParam(r, "roomID"), userID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type TypingPayload struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

func (h *MessageHandler) GetTypingHandler(w http.ResponseWriter, r *http.Request) error {
	return WriteJsonResponse(w, h.store.Typing(chi.URLParam(r, "roomID")))
}

func (h *MessageHandler) SetTypingHandler(w http.ResponseWriter, r *http.Request) error {
	var payload TypingPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	userID, err := userOr(r, h.tokens, payload.UserID)
	if err != nil {
		return err
	}
	h.store.SetTyping(chi.URLParam(r, "roomID"), userID, payload.Typing)
	w.WriteHeader(http.StatusNoContent)
	return nil
}
