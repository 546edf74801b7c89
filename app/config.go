package app

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Port is the Port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the Hostname to listen on. The default is 127.0.0.1.
	Hostname string `validate:"required"`
	Log      struct {
		// Level is one of debug, info, warn or error. The default is info.
		Level slog.Level
	}
	Auth struct {
		// Secret is the Secret key used to verify bearer tokens.
		// The secret must be a base64 encoded string. The default is a random 32 byte string.
		Secret Base64Encoded `validate:"required"`
		// Token is the bearer token the device starts with. Without one the device acts
		// as an anonymous user until a token is presented.
		Token string
	}
	SQLite struct {
		// File is the path to the SQLite database file holding the local snapshot.
		File string `validate:"required"`
		// JournalMode is passed to the sqlite3 driver. The default is WAL.
		JournalMode string `validate:"omitempty,oneof=DELETE TRUNCATE PERSIST MEMORY WAL OFF"`
	}
	Redis struct {
		// URL of the Redis server holding the remote documents, e.g. redis://localhost:6379/0.
		// The remote documents are kept in memory when empty.
		URL string `validate:"omitempty,url"`
		// Prefix is prepended to every key.
		Prefix string
	}
	Media struct {
		// Dir is the directory promoted attachments are written to.
		Dir string `validate:"required"`
		// BaseURL is the public URL Dir is served from.
		BaseURL string `validate:"required,url"`
	}
	Outbox struct {
		Size       int `validate:"gte=0"`
		MaxRetries uint64
		Backoff    time.Duration `validate:"gte=0"`
		MaxBackoff time.Duration `validate:"gte=0"`
		Timeout    time.Duration `validate:"gte=0"`
	}
	Retention struct {
		// MaxMessages is the number of messages of the current room kept on disk.
		MaxMessages int `validate:"gte=0"`
		// MaxContentLength is the number of characters of a message kept on disk.
		MaxContentLength int `validate:"gte=0"`
	}
	Invite struct {
		LinkBase  string
		QRCodeURL string        `validate:"omitempty,url"`
		TTL       time.Duration `validate:"gte=0"`
	}
	// AllowedOrigins is a list of origins that are allowed to call the API.
	// The default is ["*"].
	AllowedOrigins []string
	valid          bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// LoadConfig loads the configuration from .env, config.yaml in the working directory and
// ROOMSYNC_ prefixed environment variables.
func LoadConfig() (*Config, error) {
	loader := &FileConfigLoader{Paths: []string{"."}, EnvFile: ".env"}
	return loader.Load()
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func FormatValidationErrors(err error) string {

	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for v := range maps.Values(translated) {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
