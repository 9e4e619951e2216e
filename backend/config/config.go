// Package config reads the backend settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is where the backend looks for a .env file.
const DefaultEnvFile = "backend/.env"

// Config holds everything RunBackend needs to wire the server.
type Config struct {
	ServerURL  string
	SigningKey string
	TokenTTL   time.Duration

	MongoURI string
	DBName   string
	RedisURL string

	RabbitMQURL      string
	NumPushProducers int
	NumPushConsumers int

	ExpoHost        string
	ExpoAccessToken string
	PushTimeout     time.Duration

	ReminderSchedule string
	StrictOwnerReads bool
}

// Load is a function that reads the configuration.
//
// It accepts one argument:
// - envFile: The path of a .env file. A missing file is not an error.
//
// Variables already set in the environment win over the file. Malformed numeric,
// duration or boolean values are reported as an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("no env file at %s, using the environment", envFile)
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerURL:        getenv("SERVER_URL", "http://localhost:8080"),
		SigningKey:       getenv("JWT_SIGNING_KEY", ""),
		MongoURI:         getenv("MONGODB_URI", ""),
		DBName:           getenv("DB_NAME", "goalpal"),
		RedisURL:         getenv("REDIS_URL", ""),
		RabbitMQURL:      getenv("RABBITMQ_URL", ""),
		ExpoHost:         getenv("EXPO_HOST", ""),
		ExpoAccessToken:  getenv("EXPO_ACCESS_TOKEN", ""),
		ReminderSchedule: getenv("REMINDER_SCHEDULE", "0 8 * * *"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PushTimeout, err = getDuration("PUSH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.NumPushProducers, err = getInt("NUM_PUSH_PRODUCERS", 1); err != nil {
		return nil, err
	}
	if cfg.NumPushConsumers, err = getInt("NUM_PUSH_CONSUMERS", 2); err != nil {
		return nil, err
	}
	if cfg.StrictOwnerReads, err = getBool("STRICT_OWNER_READS", false); err != nil {
		return nil, err
	}

	if cfg.SigningKey == "" {
		return nil, errors.New("JWT_SIGNING_KEY must be set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
