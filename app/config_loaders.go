package app

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "ROOMSYNC"

type ConfigLoader interface {
	Load() (*Config, error)
}

// FileConfigLoader loads the configuration from a config.yaml found in one of Paths,
// overridden by environment variables.
//
// Environment variables are named after the config key, upper cased, with dots replaced
// by underscores and prefixed with ROOMSYNC_, e.g. ROOMSYNC_REDIS_URL. Variables in
// EnvFile are loaded into the environment first; a missing EnvFile or config file is not
// an error.
type FileConfigLoader struct {
	Paths   []string
	EnvFile string
}

func (l *FileConfigLoader) Load() (*Config, error) {
	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("godotenv.Load: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	for _, p := range l.Paths {
		v.AddConfigPath(p)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

// DefaultConfigLoader returns the defaults without reading any file or variable.
type DefaultConfigLoader struct {
}

func (l *DefaultConfigLoader) Load() (*Config, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}
	config := &Config{}
	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("port", 8080)
	v.SetDefault("hostname", "127.0.0.1")
	v.SetDefault("log.level", "info")
	// generate a random secret key
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.token", "")

	v.SetDefault("sqlite.file", "./roomsync.db")
	v.SetDefault("sqlite.journalmode", "WAL")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "roomsync")

	v.SetDefault("media.dir", "./media")
	v.SetDefault("media.baseurl", "http://127.0.0.1:8080/media")

	v.SetDefault("outbox.size", 256)
	v.SetDefault("outbox.maxretries", 3)
	v.SetDefault("outbox.backoff", "200ms")
	v.SetDefault("outbox.maxbackoff", "5s")
	v.SetDefault("outbox.timeout", "10s")

	v.SetDefault("retention.maxmessages", 100)
	v.SetDefault("retention.maxcontentlength", 4000)

	v.SetDefault("invite.linkbase", "roomsync://invite")
	v.SetDefault("invite.qrcodeurl", "https://api.qrserver.com/v1/create-qr-code/")
	v.SetDefault("invite.ttl", "72h")

	v.SetDefault("allowedorigins", []string{"*"})
	return nil
}
