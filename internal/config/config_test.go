package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"WORLD_WIDTH", "WORLD_HEIGHT", "TICK_RATE", "TIME_SCALE", "AGENT_SPEED",
		"PORT", "DISABLE_DEBUG_SERVER", "AUTOSAVE", "SIM_TICKS", "SIM_DT", "RENDER_PATH", "SIM_STRATEGY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, DefaultWorld(), cfg.World)
	assert.Equal(t, DefaultSim(), cfg.Sim)
	assert.Equal(t, DefaultServer(), cfg.Server)
	assert.Equal(t, DefaultBatch(), cfg.Batch)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORLD_WIDTH", "64")
	t.Setenv("WORLD_HEIGHT", "48")
	t.Setenv("TICK_RATE", "60")
	t.Setenv("TIME_SCALE", "2.5")
	t.Setenv("AGENT_SPEED", "0.5")
	t.Setenv("PORT", "8080")
	t.Setenv("DISABLE_DEBUG_SERVER", "true")
	t.Setenv("WORLD_PATH", "")
	t.Setenv("EVENT_LOG_PATH", "/tmp/events.jsonl")
	t.Setenv("AUTOSAVE", "false")
	t.Setenv("SIM_TICKS", "10")
	t.Setenv("SIM_DT", "0.05")
	t.Setenv("RENDER_PATH", "out.png")
	t.Setenv("SIM_STRATEGY", "Dummy")

	cfg := Load()
	assert.Equal(t, WorldConfig{Width: 64, Height: 48}, cfg.World)
	assert.Equal(t, SimConfig{TickRate: 60, TimeScale: 2.5, Speed: 0.5}, cfg.Sim)
	assert.Equal(t, ServerConfig{Port: 8080, DisableDebugServer: true}, cfg.Server)
	assert.Equal(t, StorageConfig{EventLogPath: "/tmp/events.jsonl"}, cfg.Storage, "empty WORLD_PATH disables persistence")
	assert.Equal(t, BatchConfig{Ticks: 10, DT: 0.05, RenderPath: "out.png", Strategy: "Dummy"}, cfg.Batch)
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric width", "WORLD_WIDTH", "wide"},
		{"negative width", "WORLD_WIDTH", "-3"},
		{"zero tick rate", "TICK_RATE", "0"},
		{"bad scale", "TIME_SCALE", "fast"},
		{"negative speed", "AGENT_SPEED", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			assert.Equal(t, DefaultWorld(), WorldFromEnv())
			assert.Equal(t, DefaultSim(), SimFromEnv())
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "yes")
	assert.True(t, getEnvBool("FLAG", true), "unparseable keeps default")
	assert.False(t, getEnvBool("FLAG", false))

	t.Setenv("FLAG", " 0 ")
	assert.False(t, getEnvBool("FLAG", true))
}
