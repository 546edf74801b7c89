package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/pkg/router"
	"github.com/putto11262002/roomsync/store"
	"github.com/putto11262002/roomsync/syncer"
)

type RoomHandler struct {
	store  *store.Store
	tokens Tokens
}

func NewRoomHandler(s *store.Store, tokens Tokens) *RoomHandler {
	return &RoomHandler{store: s, tokens: tokens}
}

// userOr returns userID, or the id of the device user when empty.
func userOr(r *http.Request, tokens Tokens, userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	id, err := tokens.Ensure(r.Context())
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

func (h *RoomHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	id, err := h.tokens.Ensure(r.Context())
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, id)
}

func (h *RoomHandler) GetRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	return WriteJsonResponse(w, h.store.Rooms())
}

func (h *RoomHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	room, ok := h.store.Room(chi.URLParam(r, "roomID"))
	if !ok {
		return router.NewJsonError(http.StatusNotFound, store.ErrInvalidRoom.Error())
	}
	return WriteJsonResponse(w, room)
}

func (h *RoomHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload store.CreateRoomInput
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	room, err := h.store.CreateRoom(payload)
	if err != nil {
		return err
	}
	return WriteJsonResponseWithStatusCode(w, room, http.StatusCreated)
}

func (h *RoomHandler) UpdateRoomMetaHandler(w http.ResponseWriter, r *http.Request) error {
	var payload syncer.RoomMeta
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	room, err := h.store.UpdateRoomMeta(r.Context(), chi.URLParam(r, "roomID"), payload)
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, room)
}

type SetRoomTTLPayload struct {
	// ExpiresAt clears the expiry when null.
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *RoomHandler) SetRoomTTLHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetRoomTTLPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.SetRoomTTL(chi.URLParam(r, "roomID"), payload.ExpiresAt); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type SetMessageTTLPayload struct {
	TTLMs *int64 `json:"ttlMs"`
}

func (h *RoomHandler) SetMessageTTLHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetMessageTTLPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.SetMessageTTL(chi.URLParam(r, "roomID"), payload.TTLMs); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type CurrentRoomPayload struct {
	RoomID string `json:"roomId"`
}

func (h *RoomHandler) GetCurrentRoomHandler(w http.ResponseWriter, r *http.Request) error {
	return WriteJsonResponse(w, CurrentRoomPayload{RoomID: h.store.CurrentRoom()})
}

func (h *RoomHandler) SetCurrentRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload CurrentRoomPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.SetCurrentRoom(payload.RoomID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type DmRoomPayload struct {
	UserID string `json:"userId"`
}

type DmRoomResponse struct {
	RoomID string `json:"roomId"`
}

func (h *RoomHandler) GetOrCreateDmRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload DmRoomPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	me, err := userOr(r, h.tokens, "")
	if err != nil {
		return err
	}
	id, err := h.store.GetOrCreateDmRoom(r.Context(), me, payload.UserID)
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, DmRoomResponse{RoomID: id})
}

func (h *RoomHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) error {
	settings, err := h.store.LoadRoomSettings(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, settings)
}

func (h *RoomHandler) SaveSettingsHandler(w http.ResponseWriter, r *http.Request) error {
	var payload models.RoomSettingsPatch
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	settings, err := h.store.SaveRoomSettings(r.Context(), chi.URLParam(r, "roomID"), payload)
	if err != nil {
		return err
	}
	return WriteJsonResponse(w, settings)
}

type SetPrivacyPayload struct {
	IsPublic bool `json:"isPublic"`
	// Password is kept when null and cleared when empty.
	Password *string `json:"password"`
}

func (h *RoomHandler) SetPrivacyHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetPrivacyPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.SetRoomPrivacy(chi.URLParam(r, "roomID"), payload.IsPublic, payload.Password); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *RoomHandler) GenerateInviteHandler(w http.ResponseWriter, r *http.Request) error {
	var payload store.InviteOptions
	if err := DecodeJson(r.Body, &payload, true); err != nil {
		return err
	}
	invite, err := h.store.GenerateInvite(r.Context(), chi.URLParam(r, "roomID"), payload)
	if err != nil {
		return err
	}
	return WriteJsonResponseWithStatusCode(w, invite, http.StatusCreated)
}

type AddMemberPayload struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

func (h *RoomHandler) AddMemberHandler(w http.ResponseWriter, r *http.Request) error {
	var payload AddMemberPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	roomID := chi.URLParam(r, "roomID")
	if err := h.store.AddMember(roomID, payload.UserID); err != nil {
		return err
	}
	if payload.Role != "" {
		if err := h.store.SetMemberRole(roomID, payload.UserID, payload.Role); err != nil {
			return err
		}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type SetMemberRolePayload struct {
	Role models.Role `json:"role"`
}

func (h *RoomHandler) SetMemberRoleHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetMemberRolePayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.SetMemberRole(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID"), payload.Role); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *RoomHandler) KickMemberHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.KickMember(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *RoomHandler) CloseChatHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.CloseChatForUser(chi.URLParam(r, "roomID"), chi.URLParam(r, "userID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type UserPayload struct {
	UserID string `json:"userId"`
}

func (h *RoomHandler) TransferOwnershipHandler(w http.ResponseWriter, r *http.Request) error {
	var payload UserPayload
	if err := DecodeJson(r.Body, &payload, false); err != nil {
		return err
	}
	if err := h.store.TransferOwnership(chi.URLParam(r, "roomID"), payload.UserID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *RoomHandler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload UserPayload
	if err := DecodeJson(r.Body, &payload, true); err != nil {
		return err
	}
	userID, err := userOr(r, h.tokens, payload.UserID)
	if err != nil {
		return err
	}
	if err := h.store.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), userID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
