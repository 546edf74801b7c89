// Package api exposes the local store over JSON HTTP for a UI shell running on the device.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/pkg/router"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/store"
	"github.com/putto11262002/roomsync/syncer"
)

// Tokens is the identity of the device, switched by the bearer token of a request.
type Tokens interface {
	identity.Provider
	SetToken(token string) (identity.Identity, error)
}

type Config struct {
	AllowedOrigins []string
	// Media serves promoted attachments under /media. Nothing is mounted when nil.
	Media http.Handler
}

type Api struct {
	router *router.Router
	config Config
	logger *slog.Logger
}

func New(s *store.Store, tokens Tokens, config Config, logger *slog.Logger) *Api {
	a := &Api{
		router: router.New(router.WithLogger(logger)),
		config: config,
		logger: logger,
	}
	a.registerErrorMappers()
	a.mountHandlers(NewRoomHandler(s, tokens), NewMessageHandler(s, tokens), tokens)
	return a
}

func (a *Api) Handler() http.Handler {
	return a.router
}

func (a *Api) registerErrorMappers() {
	a.router.RegisterStatus(store.ErrInvalidRoom, http.StatusBadRequest)
	a.router.RegisterStatus(store.ErrInvalidMessage, http.StatusBadRequest)
	a.router.RegisterStatus(store.ErrInvalidMember, http.StatusBadRequest)
	a.router.RegisterStatus(store.ErrDisallowedOperation, http.StatusForbidden)
	a.router.RegisterStatus(identity.ErrTokenExpired, http.StatusUnauthorized)
	a.router.RegisterStatus(identity.ErrTokenInvalid, http.StatusUnauthorized)
	a.router.RegisterStatus(identity.ErrUnrecognizedToken, http.StatusUnauthorized)
	a.router.RegisterStatus(syncer.ErrNoIdentity, http.StatusUnauthorized)
	a.router.RegisterStatus(remote.ErrNotFound, http.StatusNotFound)
}

func (a *Api) mountHandlers(rooms *RoomHandler, messages *MessageHandler, tokens Tokens) {
	a.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	if a.config.Media != nil {
		a.router.Router.Handle("/media/*", http.StripPrefix("/media", a.config.Media))
	}

	a.router.Route("/api", func(r *router.Router) {
		r.Use(BearerMiddleware(tokens))

		r.Get("/me", rooms.MeHandler)
		r.Get("/current-room", rooms.GetCurrentRoomHandler)
		r.Put("/current-room", rooms.SetCurrentRoomHandler)
		r.Post("/dms", rooms.GetOrCreateDmRoomHandler)

		r.Route("/rooms", func(r *router.Router) {
			r.Get("/", rooms.GetRoomsHandler)
			r.Post("/", rooms.CreateRoomHandler)

			r.Route("/{roomID}", func(r *router.Router) {
				r.Get("/", rooms.GetRoomHandler)
				r.Patch("/", rooms.UpdateRoomMetaHandler)
				r.Put("/ttl", rooms.SetRoomTTLHandler)
				r.Put("/message-ttl", rooms.SetMessageTTLHandler)

				r.Get("/settings", rooms.GetSettingsHandler)
				r.Patch("/settings", rooms.SaveSettingsHandler)
				r.Put("/privacy", rooms.SetPrivacyHandler)
				r.Post("/invites", rooms.GenerateInviteHandler)

				r.Post("/members", rooms.AddMemberHandler)
				r.Put("/members/{userID}/role", rooms.SetMemberRoleHandler)
				r.Delete("/members/{userID}", rooms.KickMemberHandler)
				r.Post("/members/{userID}/close", rooms.CloseChatHandler)
				r.Post("/owner", rooms.TransferOwnershipHandler)
				r.Post("/leave", rooms.LeaveRoomHandler)

				r.Get("/messages", messages.GetMessagesHandler)
				r.Post("/messages", messages.SendMessageHandler)
				r.Patch("/messages/{messageID}", messages.UpdateMessageHandler)
				r.Delete("/messages/{messageID}", messages.DeleteMessageHandler)
				r.Post("/messages/{messageID}/reactions", messages.ToggleReactionHandler)
				r.Post("/messages/{messageID}/hide", messages.HideMessageHandler)
				r.Delete("/messages/{messageID}/hide", messages.UnhideMessageHandler)
				r.Post("/read", messages.MarkReadHandler)
				r.Get("/typing", messages.GetTypingHandler)
				r.Put("/typing", messages.SetTypingHandler)
			})
		})
	})
}
