// Package config provides centralized configuration management.
// Every binary reads its settings from here; defaults can be overridden
// with environment variables (optionally loaded from .env by cmd/*).
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds the dimensions of a freshly created world.
type WorldConfig struct {
	Width  int // Cells per row
	Height int // Rows
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:  32,
		Height: 24,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvInt("WORLD_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("WORLD_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds the tick loop settings.
type SimConfig struct {
	TickRate  int     // Ticks per second of the background loop
	TimeScale float64 // Simulated seconds per wall-clock second
	Speed     float64 // Agent speed in cells per simulated second
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:  30,
		TimeScale: 1.0,
		Speed:     1.0,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if r := getEnvInt("TICK_RATE", 0); r > 0 {
		cfg.TickRate = r
	}
	if s := getEnvFloat("TIME_SCALE", 0); s > 0 {
		cfg.TimeScale = s
	}
	if v := getEnvFloat("AGENT_SPEED", 0); v > 0 {
		cfg.Speed = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int
	DisableDebugServer bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	cfg.DisableDebugServer = getEnvBool("DISABLE_DEBUG_SERVER", cfg.DisableDebugServer)

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig holds file locations. Empty paths disable the feature.
type StorageConfig struct {
	WorldPath    string // Binary world file loaded at startup and saved on exit
	EventLogPath string // JSON lines event log
	Autosave     bool   // Save WorldPath on shutdown
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{
		WorldPath: "world.bin",
		Autosave:  true,
	}
}

// StorageFromEnv returns storage configuration with environment variable overrides.
func StorageFromEnv() StorageConfig {
	cfg := DefaultStorage()

	if p, ok := os.LookupEnv("WORLD_PATH"); ok {
		cfg.WorldPath = p
	}
	if p, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = p
	}
	cfg.Autosave = getEnvBool("AUTOSAVE", cfg.Autosave)

	return cfg
}

// =============================================================================
// BATCH RUN CONFIGURATION
// =============================================================================

// BatchConfig drives the headless simulate binary.
type BatchConfig struct {
	Ticks      int     // Number of ticks to run
	DT         float64 // Simulated seconds per tick
	RenderPath string  // PNG written after the run, empty to skip
	Strategy   string  // Attached to every agent before the run
}

// DefaultBatch returns the default batch configuration.
func DefaultBatch() BatchConfig {
	return BatchConfig{
		Ticks:    300,
		DT:       0.1,
		Strategy: "FlowField",
	}
}

// BatchFromEnv returns batch configuration with environment variable overrides.
func BatchFromEnv() BatchConfig {
	cfg := DefaultBatch()

	if n := getEnvInt("SIM_TICKS", 0); n > 0 {
		cfg.Ticks = n
	}
	if dt := getEnvFloat("SIM_DT", 0); dt > 0 {
		cfg.DT = dt
	}
	cfg.RenderPath = os.Getenv("RENDER_PATH")
	if name := os.Getenv("SIM_STRATEGY"); name != "" {
		cfg.Strategy = name
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World   WorldConfig
	Sim     SimConfig
	Server  ServerConfig
	Storage StorageConfig
	Batch   BatchConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:   WorldFromEnv(),
		Sim:     SimFromEnv(),
		Server:  ServerFromEnv(),
		Storage: StorageFromEnv(),
		Batch:   BatchFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
