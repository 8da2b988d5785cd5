package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"strconv"

	"robot-sim/internal/engine"
	"robot-sim/internal/grid"
	"robot-sim/internal/render"
	"robot-sim/internal/sim"

	"github.com/go-chi/chi/v5"
)

const (
	// DefaultStepDT is used when a step request has no dt.
	DefaultStepDT = 0.1

	// MaxStepTicks caps ticks per step request.
	MaxStepTicks = 1000

	// MaxRenderCellSize caps the cell query parameter of render.png.
	MaxRenderCellSize = 64

	maxBodyBytes = 1 << 16
)

type cellRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// worldResponse is the JSON form of a snapshot.
type worldResponse struct {
	*engine.Snapshot
	Rows []string `json:"rows"`
}

type viewResponse struct {
	ID      uint32   `json:"id"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Visible []string `json:"visible"`
	Memory  []string `json:"memory"`
}

func (h *routerHandlers) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	writeJSON(w, worldResponse{Snapshot: snap, Rows: snap.Rows()})
}

func (h *routerHandlers) handleRenderWorld(w http.ResponseWriter, r *http.Request) {
	opts := render.Options{Labels: true}

	if v := r.URL.Query().Get("cell"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 || size > MaxRenderCellSize {
			writeError(w, "cell must be between 1 and 64", http.StatusBadRequest)
			return
		}
		opts.CellSize = size
	}

	if v := r.URL.Query().Get("agent"); v != "" {
		id, err := parseID(v)
		if err != nil {
			writeError(w, "Invalid agent id", http.StatusBadRequest)
			return
		}
		view, err := h.engine.AgentView(id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		opts.View = view
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := render.RenderPNG(w, h.engine.Snapshot(), opts); err != nil {
		log.Printf("⚠️ Render failed: %v", err)
	}
}

func (h *routerHandlers) handleAddWall(w http.ResponseWriter, r *http.Request) {
	x, y, ok := decodeCell(w, r)
	if !ok {
		return
	}
	if err := h.engine.AddWall(x, y); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleRemoveWall(w http.ResponseWriter, r *http.Request) {
	x, y, ok := decodeCell(w, r)
	if !ok {
		return
	}
	if err := h.engine.RemoveWall(x, y); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	x, y, ok := decodeCell(w, r)
	if !ok {
		return
	}
	id, err := h.engine.AddAgent(x, y)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if a, found := h.engine.Snapshot().Agent(id); found {
		writeJSONStatus(w, http.StatusCreated, a)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]uint32{"id": id})
}

func (h *routerHandlers) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.RemoveAgent(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	x, y, ok := decodeCell(w, r)
	if !ok {
		return
	}
	if err := h.engine.SetGoal(id, x, y); err != nil {
		writeEngineError(w, err)
		return
	}
	h.writeAgent(w, id)
}

func (h *routerHandlers) handleClearGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.ClearGoal(id); err != nil {
		writeEngineError(w, err)
		return
	}
	h.writeAgent(w, id)
}

func (h *routerHandlers) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.engine.SetStrategy(id, req.Name); err != nil {
		writeEngineError(w, err)
		return
	}
	h.writeAgent(w, id)
}

func (h *routerHandlers) handleAgentView(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.engine.AgentView(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	visible, memory := view.Rows()
	writeJSON(w, viewResponse{
		ID:      view.ID,
		Width:   view.Width,
		Height:  view.Height,
		Visible: visible,
		Memory:  memory,
	})
}

func (h *routerHandlers) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Strategies())
}

func (h *routerHandlers) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DT    float64 `json:"dt"`
		Ticks int     `json:"ticks"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.DT == 0 {
		req.DT = DefaultStepDT
	}
	if req.DT < 0 || math.IsNaN(req.DT) || math.IsInf(req.DT, 0) {
		writeError(w, "dt must be a positive number", http.StatusBadRequest)
		return
	}
	if req.Ticks <= 0 {
		req.Ticks = 1
	}
	if req.Ticks > MaxStepTicks {
		req.Ticks = MaxStepTicks
	}

	var total sim.StepStats
	for i := 0; i < req.Ticks; i++ {
		total.Add(h.engine.Step(req.DT))
	}

	writeJSON(w, map[string]interface{}{
		"ticks": req.Ticks,
		"stats": total,
		"tick":  h.engine.Snapshot().TickNumber,
	})
}

func (h *routerHandlers) handleStart(w http.ResponseWriter, r *http.Request) {
	log.Println("🤖 Simulation start requested via API")
	h.engine.Start()
	writeJSON(w, map[string]bool{"running": h.engine.Running()})
}

func (h *routerHandlers) handleStop(w http.ResponseWriter, r *http.Request) {
	log.Println("🛑 Simulation stop requested via API")
	h.engine.Stop()
	writeJSON(w, map[string]bool{"running": h.engine.Running()})
}

func (h *routerHandlers) handleSaveWorld(w http.ResponseWriter, r *http.Request) {
	if h.worldPath == "" {
		writeError(w, "Persistence is disabled", http.StatusConflict)
		return
	}
	if err := h.engine.Save(h.worldPath); err != nil {
		log.Printf("❌ Save failed: %v", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "path": h.worldPath})
}

func (h *routerHandlers) handleLoadWorld(w http.ResponseWriter, r *http.Request) {
	if h.worldPath == "" {
		writeError(w, "Persistence is disabled", http.StatusConflict)
		return
	}
	if err := h.engine.Load(h.worldPath); err != nil {
		log.Printf("❌ Load failed: %v", err)
		writeEngineError(w, err)
		return
	}
	snap := h.engine.Snapshot()
	writeJSON(w, worldResponse{Snapshot: snap, Rows: snap.Rows()})
}

func (h *routerHandlers) writeAgent(w http.ResponseWriter, id uint32) {
	a, ok := h.engine.Snapshot().Agent(id)
	if !ok {
		writeEngineError(w, engine.ErrUnknownAgent)
		return
	}
	writeJSON(w, a)
}

// Helper functions (package-level for reuse)

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// decodeCell reads an {x, y} body, writing a 400 on failure.
func decodeCell(w http.ResponseWriter, r *http.Request) (x, y int, ok bool) {
	var req cellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return 0, 0, false
	}
	if req.X == nil || req.Y == nil {
		writeError(w, "x and y are required", http.StatusBadRequest)
		return 0, 0, false
	}
	return *req.X, *req.Y, true
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	return uint32(id), err
}

func agentIDParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "Invalid agent id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownAgent), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownStrategy), errors.Is(err, grid.ErrOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrUnsupportedVersion),
		errors.Is(err, sim.ErrInvalidDimensions),
		errors.Is(err, sim.ErrCorruptWorld),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
