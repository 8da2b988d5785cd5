package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"robot-sim/internal/api"
	"robot-sim/internal/config"
	"robot-sim/internal/engine"
	"robot-sim/internal/routing"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🤖 ================================")
	log.Println("🤖  ROBOT SIM - SERVER")
	log.Println("🤖 ================================")

	appConfig := config.Load()
	worldCfg := appConfig.World
	simCfg := appConfig.Sim
	serverCfg := appConfig.Server
	storageCfg := appConfig.Storage

	eng, err := engine.New(engine.Config{
		Width:     worldCfg.Width,
		Height:    worldCfg.Height,
		TickRate:  simCfg.TickRate,
		TimeScale: simCfg.TimeScale,
		Speed:     simCfg.Speed,
	}, routing.NewDefaultRegistry())
	if err != nil {
		log.Fatalf("❌ Failed to create engine: %v", err)
	}
	log.Printf("🎮 Config: %dx%d world, %d TPS, time scale %.2f, speed %.2f",
		worldCfg.Width, worldCfg.Height, simCfg.TickRate, simCfg.TimeScale, simCfg.Speed)

	// Restore the last saved world if there is one
	if storageCfg.WorldPath != "" {
		if _, err := os.Stat(storageCfg.WorldPath); err == nil {
			if err := eng.Load(storageCfg.WorldPath); err != nil {
				log.Printf("⚠️ Could not load %s, starting empty: %v", storageCfg.WorldPath, err)
			}
		} else {
			log.Printf("🆕 No world at %s, starting empty", storageCfg.WorldPath)
		}
	}

	if storageCfg.EventLogPath != "" {
		if err := eng.StartEventLog(storageCfg.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", storageCfg.EventLogPath)
		}
	}

	var debugServer *http.Server
	if !serverCfg.DisableDebugServer {
		debugServer = api.StartDebugServer(api.DefaultObservabilityConfig())
	}

	eng.SetOnTick(api.NewEngineMetrics(eng).OnTick)
	eng.Start()
	log.Println("✅ Simulation engine started")

	server := api.NewServer(eng, storageCfg.WorldPath)
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}

	eng.Stop()
	if storageCfg.Autosave && storageCfg.WorldPath != "" {
		if err := eng.Save(storageCfg.WorldPath); err != nil {
			log.Printf("❌ Autosave failed: %v", err)
		}
	}
	eng.StopEventLog()
	log.Println("👋 Goodbye!")
}
