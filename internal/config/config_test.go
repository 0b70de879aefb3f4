package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "auto", cfg.AI.Mode)
	assert.True(t, cfg.AI.AllowExternal)
	assert.Equal(t, 30*time.Second, cfg.AI.AvailabilityTTL)
	assert.Equal(t, 5*time.Second, cfg.Tools.Timeout)
	assert.Equal(t, 3, cfg.Tools.MaxCallsPerRound)
	assert.Equal(t, 2000, cfg.Chat.MaxMessageChars)
	assert.Equal(t, 120*time.Second, cfg.Chat.ReadTimeout)
	assert.Equal(t, 25*time.Second, cfg.Chat.Keepalive)
	assert.Equal(t, 5*time.Minute, cfg.Disambig.TTL)
	assert.Equal(t, []string{"*"}, cfg.Chat.AllowedOrigins)
	assert.Empty(t, cfg.Tools.BaseURL)
	assert.Equal(t, 720*time.Hour, cfg.History.Retention)
	assert.Equal(t, time.Hour, cfg.History.PruneInterval)
	assert.Equal(t, 10*time.Second, cfg.Telemetry.ExportTimeout)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("AI_MODE", "force_local")
	t.Setenv("AI_ALLOW_EXTERNAL", "false")
	t.Setenv("TOOLS_BASE_URL", "http://tools:8000")
	t.Setenv("TOOLS_INTERNAL_SECRET", "s3cret")
	t.Setenv("TOOLS_MAX_CALLS_PER_ROUND", "5")
	t.Setenv("DISAMBIG_TTL", "90s")
	t.Setenv("GUARD_BLOCKED_WORDS", "armas,drogas duras")
	t.Setenv("HISTORY_RETENTION", "0s")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization:Bearer abc")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "force_local", cfg.AI.Mode)
	assert.False(t, cfg.AI.AllowExternal)
	assert.Equal(t, 5, cfg.Tools.MaxCallsPerRound)
	assert.Equal(t, 90*time.Second, cfg.Disambig.TTL)
	assert.Equal(t, []string{"armas", "drogas duras"}, cfg.Guard.BlockedWords)
	assert.Zero(t, cfg.History.Retention)
	assert.Equal(t, map[string]string{"authorization": "Bearer abc"}, cfg.Telemetry.Headers)
}

func TestValidate(t *testing.T) {
	cases := map[string]map[string]string{
		"bad mode":          {"AI_MODE": "turbo"},
		"zero tool timeout": {"TOOLS_TIMEOUT": "0s"},
		"keepalive too long": {
			"CHAT_KEEPALIVE":    "200s",
			"CHAT_READ_TIMEOUT": "120s",
		},
		"tools without secret": {"TOOLS_BASE_URL": "http://tools:8000"},
		"no tool calls":        {"TOOLS_MAX_CALLS_PER_ROUND": "0"},
		"bad sensitivity":      {"GUARD_SENSITIVITY": "paranoid"},
		"bad port":             {"GROWEN_PORT": "70000"},
		"negative retention":   {"HISTORY_RETENTION": "-1h"},
		"prune too often":      {"HISTORY_PRUNE_INTERVAL": "5s"},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range envs {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestParse_BadValue(t *testing.T) {
	t.Setenv("DISAMBIG_TTL", "five minutes")
	_, err := Parse()
	assert.Error(t, err)
}
