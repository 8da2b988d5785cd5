// =============================================================================
// ROBOT SIM - HEADLESS RUNNER
// =============================================================================
// Runs a world for a fixed number of ticks without the HTTP server:
// - Loads WORLD_PATH, or seeds a demo world when the file does not exist
// - Attaches SIM_STRATEGY to every agent and runs SIM_TICKS ticks of SIM_DT
// - Saves the world back (AUTOSAVE) and optionally renders RENDER_PATH
//
// USAGE:
//   SIM_TICKS=500 RENDER_PATH=world.png go run ./cmd/simulate
// =============================================================================
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"robot-sim/internal/config"
	"robot-sim/internal/engine"
	"robot-sim/internal/render"
	"robot-sim/internal/routing"
	"robot-sim/internal/sim"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("🤖 ================================")
	log.Println("🤖  ROBOT SIM - HEADLESS RUN")
	log.Println("🤖 ================================")

	if err := run(config.Load()); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// runResult summarizes one batch run.
type runResult struct {
	Ticks    int
	Stats    sim.StepStats
	Pending  int // agents still holding a goal
	Duration time.Duration
}

func run(cfg config.AppConfig) error {
	eng, err := engine.New(engine.Config{
		Width:     cfg.World.Width,
		Height:    cfg.World.Height,
		TickRate:  cfg.Sim.TickRate,
		TimeScale: cfg.Sim.TimeScale,
		Speed:     cfg.Sim.Speed,
	}, routing.NewDefaultRegistry())
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	worldPath := cfg.Storage.WorldPath
	if worldPath != "" && fileExists(worldPath) {
		if err := eng.Load(worldPath); err != nil {
			return err
		}
	} else {
		log.Printf("🆕 No world file, seeding a %dx%d demo world", cfg.World.Width, cfg.World.Height)
		if err := seedDemo(eng); err != nil {
			return fmt.Errorf("seed demo world: %w", err)
		}
	}

	if cfg.Storage.EventLogPath != "" {
		if err := eng.StartEventLog(cfg.Storage.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		}
		defer eng.StopEventLog()
	}

	for _, a := range eng.Snapshot().Agents {
		if err := eng.SetStrategy(a.ID, cfg.Batch.Strategy); err != nil {
			return fmt.Errorf("agent %d: %w", a.ID, err)
		}
	}

	res := simulate(eng, cfg.Batch.Ticks, cfg.Batch.DT)
	log.Printf("🏁 %d ticks in %v: %d moves, %d blocked, %d arrived, %d still travelling",
		res.Ticks, res.Duration.Round(time.Millisecond), res.Stats.Moves, res.Stats.Blocked, res.Stats.Arrived, res.Pending)

	if err := eng.CheckInvariants(); err != nil {
		return err
	}

	if cfg.Storage.Autosave && worldPath != "" {
		if err := eng.Save(worldPath); err != nil {
			return err
		}
	}

	if cfg.Batch.RenderPath != "" {
		if err := writePNG(cfg.Batch.RenderPath, eng.Snapshot()); err != nil {
			return err
		}
		log.Printf("🖼️  Rendered %s", cfg.Batch.RenderPath)
	}
	return nil
}

// simulate steps eng up to ticks times, stopping early once no agent has a
// goal left.
func simulate(eng *engine.Engine, ticks int, dt float64) runResult {
	start := time.Now()
	res := runResult{}

	for res.Ticks < ticks {
		res.Stats.Add(eng.Step(dt))
		res.Ticks++

		if res.Ticks%100 == 0 {
			log.Printf("⏱️  tick %d: %d moves, %d arrived", res.Ticks, res.Stats.Moves, res.Stats.Arrived)
		}
		if pendingGoals(eng.Snapshot()) == 0 {
			break
		}
	}

	res.Pending = pendingGoals(eng.Snapshot())
	res.Duration = time.Since(start)
	return res
}

func pendingGoals(snap *engine.Snapshot) int {
	n := 0
	for _, a := range snap.Agents {
		if a.HasGoal {
			n++
		}
	}
	return n
}

// seedDemo builds a wall across the middle with one gap and sends agents
// from the left edge to the right edge.
func seedDemo(eng *engine.Engine) error {
	snap := eng.Snapshot()
	w, h := snap.Width, snap.Height
	if w < 3 || h < 2 {
		return nil
	}

	mid, gap := w/2, h/2
	for y := 0; y < h; y++ {
		if y == gap {
			continue
		}
		if err := eng.AddWall(mid, y); err != nil {
			return err
		}
	}

	for y := 0; y < h; y += 3 {
		id, err := eng.AddAgent(0, y)
		if err != nil {
			return err
		}
		if err := eng.SetGoal(id, w-1, h-1-y); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, snap *engine.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := render.RenderPNG(f, snap, render.Options{Labels: true}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
