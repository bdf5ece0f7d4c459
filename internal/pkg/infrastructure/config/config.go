package config

import (
	"errors"
	"os"
	"time"
)

//Config holds the runtime settings for the tracker service. It is created once
//at startup and passed by reference into the components that need it.
type Config struct {
	ServicePort string

	//SecretKey is the HMAC secret used to sign bearer tokens
	SecretKey string
	//EncryptionSecret is the pre-shared secret that the symmetric codec
	//normalizes into its 256 bit transport key
	EncryptionSecret string

	TokenLifetime time.Duration
}

//ErrMissingSecretKey is returned when no signing secret has been configured
var ErrMissingSecretKey = errors.New("TRACKER_SECRET_KEY is not set")

//ErrMissingEncryptionKey is returned when no transport encryption secret has been configured
var ErrMissingEncryptionKey = errors.New("TRACKER_ENCRYPTION_KEY is not set")

//Load reads the service configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		ServicePort:      getEnv("SERVICE_PORT", "8880"),
		SecretKey:        os.Getenv("TRACKER_SECRET_KEY"),
		EncryptionSecret: os.Getenv("TRACKER_ENCRYPTION_KEY"),
		TokenLifetime:    24 * time.Hour,
	}

	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}

	if cfg.EncryptionSecret == "" {
		return nil, ErrMissingEncryptionKey
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
