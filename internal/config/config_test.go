package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WS_ADDR", "HTTP_ADDR", "REDIS_URL", "DATABASE_URL", "MESSAGES_DIR", "ALLOWED_ORIGINS",
		"TURN_DURATION", "COUNTDOWN_DURATION", "DISCONNECT_NOTICE_DELAY", "RECONNECT_GRACE",
		"MATCH_TTL", "MAX_MISSED_TURNS", "TURN_TIMER_ON_DISCONNECT",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.WSAddr)
	require.Equal(t, ":3001", cfg.HTTPAddr)
	require.Equal(t, 15*time.Second, cfg.TurnDuration)
	require.Equal(t, 5*time.Second, cfg.CountdownDuration)
	require.Equal(t, 3*time.Second, cfg.DisconnectNoticeDelay)
	require.Equal(t, 45*time.Second, cfg.ReconnectGrace)
	require.Equal(t, 24*time.Hour, cfg.MatchTTL)
	require.Equal(t, 2, cfg.MaxMissedTurns)
	require.Equal(t, "continue", cfg.TurnTimerOnDisconnect)
	require.Empty(t, cfg.RedisURL)
	require.Empty(t, cfg.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TURN_DURATION", "20")
	t.Setenv("RECONNECT_GRACE", "1m")
	t.Setenv("MATCH_TTL", "0")
	t.Setenv("MAX_MISSED_TURNS", "3")
	t.Setenv("TURN_TIMER_ON_DISCONNECT", "Suspend")
	t.Setenv("ALLOWED_ORIGINS", "play.example.com, *.example.org ,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, cfg.TurnDuration)
	require.Equal(t, time.Minute, cfg.ReconnectGrace)
	require.Zero(t, cfg.MatchTTL)
	require.Equal(t, 3, cfg.MaxMissedTurns)
	require.Equal(t, "suspend", cfg.TurnTimerOnDisconnect)
	require.Equal(t, []string{"play.example.com", "*.example.org"}, cfg.AllowedOrigins)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":     {"TURN_DURATION", "soon"},
		"zero turn":        {"TURN_DURATION", "0"},
		"negative grace":   {"RECONNECT_GRACE", "-5s"},
		"bad missed":       {"MAX_MISSED_TURNS", "none"},
		"zero missed":      {"MAX_MISSED_TURNS", "0"},
		"unknown policy":   {"TURN_TIMER_ON_DISCONNECT", "pause"},
		"same listen addr": {"HTTP_ADDR", ":3000"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
