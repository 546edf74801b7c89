package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/putto11262002/roomsync/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return ValidUserID(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
	return v
}

// ValidUserID reports whether id can be used as a user id. User ids name remote documents
// and map fields, so they cannot contain the path separator or the field separator.
func ValidUserID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "./")
}

// checkUserID returns ErrInvalidMember for ids rejected by ValidUserID.
func checkUserID(id string) error {
	if !ValidUserID(id) {
		return fmt.Errorf("%w: invalid user id %q", ErrInvalidMember, id)
	}
	return nil
}

// CreateRoomInput represents the input for creating a room.
type CreateRoomInput struct {
	Title   string   `json:"title"`
	Members []string `json:"members" validate:"required,min=1,dive,userid"`
	// Type is derived from the member count when empty.
	Type       models.RoomType `json:"type" validate:"omitempty,oneof=dm group ttl secret notice"`
	ExpiresAt  *time.Time      `json:"expiresAt"`
	MessageTTL *int64          `json:"messageTtlMs" validate:"omitempty,gt=0"`
	Tags       []string        `json:"tags"`
	AvatarURL  string          `json:"avatarUrl"`
	// Description is not part of the creation form of every client but is kept on the room.
	Description      string  `json:"description"`
	Password         *string `json:"password"`
	ParticipantLimit *int    `json:"participantLimit" validate:"omitempty,gte=0"`
}

// Validate validates the room input.
func (in *CreateRoomInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoom, err)
	}
	return nil
}

// SendMessageInput represents the input for sending a message.
type SendMessageInput struct {
	// ID is generated when empty.
	ID        string             `json:"id"`
	RoomID    string             `json:"roomId" validate:"required"`
	SenderID  string             `json:"senderId" validate:"required,userid"`
	Content   string             `json:"content" validate:"required_without_all=ImageURL AlbumURLs"`
	Type      models.MessageType `json:"type" validate:"omitempty,oneof=text image file system album video"`
	ImageURL  string             `json:"imageUrl"`
	ReplyToID string             `json:"replyToId"`
	AlbumURLs []string           `json:"albumUrls"`
}

// Validate validates the message input.
func (in *SendMessageInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// InviteOptions bounds an invite. Nil fields use the defaults.
type InviteOptions struct {
	MaxAgeSec *int64 `json:"maxAgeSec" validate:"omitempty,gt=0"`
	MaxUses   *int   `json:"maxUses" validate:"omitempty,gt=0"`
}

func (in *InviteOptions) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoom, err)
	}
	return nil
}
