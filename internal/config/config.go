package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Delivery modes for the sent -> delivered transition.
const (
	DeliveryModeAck   = "ack"
	DeliveryModeTimer = "timer"
)

type Config struct {
	Port      string
	JWTSecret string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AllowedOrigins string
	CSRFMode       string

	MaxMessageLength int

	DeliveryMode  string
	DeliveryDelay time.Duration
	TypingTTL     time.Duration

	PingInterval time.Duration
	PongTimeout  time.Duration

	ShutdownTimeout time.Duration

	WSDebug bool
}

// Load reads the process environment, optionally seeded from a .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		CSRFMode:       strings.ToLower(envOr("CSRF_MODE", "origin")),
		DeliveryMode:   strings.ToLower(envOr("DELIVERY_MODE", DeliveryModeAck)),
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	cfg.DatabaseDSN = fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		envOr("DB_PORT", "5432"),
		envOr("DB_SSLMODE", "disable"),
	)

	if s := os.Getenv("REDIS_DB"); s != "" {
		db, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	cfg.MaxMessageLength = 4000
	if s := os.Getenv("MAX_MESSAGE_LENGTH"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_MESSAGE_LENGTH: %q", s)
		}
		cfg.MaxMessageLength = n
	}

	cfg.WSDebug, _ = strconv.ParseBool(os.Getenv("WS_DEBUG"))

	switch cfg.CSRFMode {
	case "token", "origin", "off":
	default:
		return Config{}, fmt.Errorf("invalid CSRF_MODE %q", cfg.CSRFMode)
	}

	switch cfg.DeliveryMode {
	case DeliveryModeAck, DeliveryModeTimer:
	default:
		return Config{}, fmt.Errorf("invalid DELIVERY_MODE %q", cfg.DeliveryMode)
	}

	var err error
	if cfg.DeliveryDelay, err = durationOr("DELIVERY_DELAY", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TypingTTL, err = durationOr("TYPING_TTL", 6*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = durationOr("WS_PING_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PongTimeout, err = durationOr("WS_PONG_TIMEOUT", 90*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationOr("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		return Config{}, errors.New("WS_PONG_TIMEOUT must be greater than WS_PING_INTERVAL")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
