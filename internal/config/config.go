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

type AppConfig struct {
	WSAddr   string
	HTTPAddr string

	RedisURL    string
	DatabaseURL string
	MatchTTL    time.Duration

	MessagesDir    string
	AllowedOrigins []string

	TurnDuration          time.Duration
	CountdownDuration     time.Duration
	DisconnectNoticeDelay time.Duration
	ReconnectGrace        time.Duration
	MaxMissedTurns        int
	TurnTimerOnDisconnect string
}

// Load reads .env when present, then the process environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		WSAddr:                ":3000",
		HTTPAddr:              ":3001",
		MatchTTL:              24 * time.Hour,
		TurnDuration:          15 * time.Second,
		CountdownDuration:     5 * time.Second,
		DisconnectNoticeDelay: 3 * time.Second,
		ReconnectGrace:        45 * time.Second,
		MaxMissedTurns:        2,
		TurnTimerOnDisconnect: "continue",
	}

	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		allowOff bool
	}{
		{"TURN_DURATION", &cfg.TurnDuration, false},
		{"COUNTDOWN_DURATION", &cfg.CountdownDuration, false},
		{"DISCONNECT_NOTICE_DELAY", &cfg.DisconnectNoticeDelay, false},
		{"RECONNECT_GRACE", &cfg.ReconnectGrace, false},
		{"MATCH_TTL", &cfg.MatchTTL, true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if parsed < 0 || (parsed == 0 && !d.allowOff) {
			return nil, fmt.Errorf("%s must be positive", d.key)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("MAX_MISSED_TURNS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MAX_MISSED_TURNS must be a positive integer")
		}
		cfg.MaxMissedTurns = n
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("TURN_TIMER_ON_DISCONNECT"))); v != "" {
		if v != "continue" && v != "suspend" {
			return nil, fmt.Errorf("TURN_TIMER_ON_DISCONNECT must be continue or suspend, got %q", v)
		}
		cfg.TurnTimerOnDisconnect = v
	}

	if cfg.WSAddr == cfg.HTTPAddr {
		return nil, errors.New("WS_ADDR and HTTP_ADDR must differ")
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("15s", "1h") or bare seconds ("15").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
