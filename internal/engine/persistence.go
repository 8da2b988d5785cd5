package engine

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Save writes the world to path in the binary world format. The file is
// written next to path first and renamed over it, so a crash never leaves a
// truncated world behind.
func (e *Engine) Save(path string) error {
	e.mu.Lock()
	data, err := e.world.MarshalBinary()
	agents := e.world.Len()
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save world: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save world: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save world: %w", err)
	}

	log.Printf("💾 World saved to %s (%d bytes, %d agents)", path, len(data), agents)
	return nil
}

// Load replaces the world with the one stored at path. On any error the
// current world is untouched. Loaded agents have no strategy.
func (e *Engine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.Restore(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("load world %s: %w", path, err)
	}
	clear(e.strategyNames)

	payload := WorldLoadedPayload{
		Path:   path,
		Width:  e.world.Width(),
		Height: e.world.Height(),
		Agents: e.world.Len(),
	}
	e.eventLog.EmitSimple(EventTypeWorldLoaded, e.tickCount, "", payload)
	e.publishLocked()

	log.Printf("📂 World loaded from %s (%dx%d, %d agents)", path, payload.Width, payload.Height, payload.Agents)
	return nil
}
