// internal/config/config.go
// Loads client configuration from a JSON file, .env and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Config holds everything the troubleflipper client needs to reach the broker.
type Config struct {
	NatsURL              string           `json:"nats_url" validate:"required,url"`
	ClientID             string           `json:"client_id" validate:"required"`
	Username             string           `json:"username" validate:"omitempty,username"`
	ClientName           string           `json:"client_name"`
	EnableJetStream      bool             `json:"enable_jetstream"`
	MaxReconnects        int              `json:"max_reconnects" validate:"gte=-1"`
	ReconnectWaitSeconds int              `json:"reconnect_wait_seconds" validate:"gte=0"`
	Log                  logger.LogConfig `json:"log"`
}

// Default returns the configuration used when no file or variables are set.
func Default() Config {
	return Config{
		NatsURL:              nats.DefaultURL,
		ClientName:           "troubleflipper-client",
		MaxReconnects:        nats.DefaultMaxReconnect,
		ReconnectWaitSeconds: 2,
		Log:                  logger.DefaultLogConfig(),
	}
}

// ReconnectWait is ReconnectWaitSeconds as a duration.
func (c Config) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectWaitSeconds) * time.Second
}

// Load reads filePath (a missing file is not an error), then a .env file in
// the working directory, then the environment. A missing client id is
// generated. The result is validated.
func Load(filePath string) (Config, error) {
	cfg := Default()

	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(filePath string, cfg *Config) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NatsURL = v
	}
	if v := os.Getenv("TF_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("TF_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("TF_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TF_ENABLE_JETSTREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TF_ENABLE_JETSTREAM: %w", err)
		}
		cfg.EnableJetStream = b
	}
	return nil
}
