package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"
	"space-arena/internal/journal"
	"space-arena/internal/preview"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 16

func (h *routerHandlers) handleDynamicSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.arena.DynamicSnapshot())
}

func (h *routerHandlers) handleStaticSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.arena.StaticSnapshot())
}

func (h *routerHandlers) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	ids := h.arena.PlayerIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, ids)
}

func (h *routerHandlers) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	st, ok := h.arena.PlayerSnapshot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

func (h *routerHandlers) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	if h.players == nil {
		writeError(w, "Player spawning disabled", http.StatusNotImplemented)
		return
	}
	id, err := h.players.AddPlayer()
	if err != nil {
		h.writeAddError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *routerHandlers) handlePlayerCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cmd, err := arena.ParseCommand(chi.URLParam(r, "command"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := h.arena.PlayerSnapshot(id); !ok {
		writeError(w, "Player not found", http.StatusNotFound)
		return
	}
	if err := h.arena.Execute(id, cmd); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSelectWeapon(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, "Invalid weapon index", http.StatusBadRequest)
		return
	}
	if !h.arena.SelectWeapon(chi.URLParam(r, "id"), index) {
		writeError(w, "No such player or weapon", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// bodyRequest is the JSON body for POST /api/bodies.
type bodyRequest struct {
	AssetID      string  `json:"assetId"`
	Size         float64 `json:"size"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	SpeedX       float64 `json:"vx"`
	SpeedY       float64 `json:"vy"`
	AccX         float64 `json:"ax"`
	AccY         float64 `json:"ay"`
	Angle        float64 `json:"angle"`
	AngularSpeed float64 `json:"angularSpeed"`
	MaxLife      float64 `json:"maxLife"`
}

// inertRequest is the JSON body for statics and decorators.
type inertRequest struct {
	AssetID string  `json:"assetId"`
	Size    float64 `json:"size"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Angle   float64 `json:"angle"`
	MaxLife float64 `json:"maxLife"`
}

func (h *routerHandlers) handleAddBody(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AssetID == "" || req.Size <= 0 {
		writeError(w, "assetId and a positive size are required", http.StatusBadRequest)
		return
	}

	id, err := h.arena.AddDynamic(arena.DynamicSpec{
		AssetID:      req.AssetID,
		Size:         req.Size,
		PosX:         req.X,
		PosY:         req.Y,
		SpeedX:       req.SpeedX,
		SpeedY:       req.SpeedY,
		AccX:         req.AccX,
		AccY:         req.AccY,
		Angle:        req.Angle,
		AngularSpeed: req.AngularSpeed,
		MaxLife:      req.MaxLife,
	})
	if err != nil {
		h.writeAddError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *routerHandlers) handleAddStatic(w http.ResponseWriter, r *http.Request) {
	h.addInert(w, r, h.arena.AddStatic)
}

func (h *routerHandlers) handleAddDecorator(w http.ResponseWriter, r *http.Request) {
	h.addInert(w, r, h.arena.AddDecorator)
}

func (h *routerHandlers) addInert(w http.ResponseWriter, r *http.Request,
	add func(assetID string, size, posX, posY, angle, maxLife float64) (string, error)) {
	var req inertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AssetID == "" || req.Size <= 0 {
		writeError(w, "assetId and a positive size are required", http.StatusBadRequest)
		return
	}

	id, err := add(req.AssetID, req.Size, req.X, req.Y, req.Angle, req.MaxLife)
	if err != nil {
		h.writeAddError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *routerHandlers) writeAddError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrBodyLimit):
		writeError(w, "Body limit reached", http.StatusServiceUnavailable)
	case errors.Is(err, arena.ErrStopped):
		writeError(w, "Simulation stopped", http.StatusConflict)
	default:
		h.log.Error().Err(err).Msg("Adding body failed")
		writeError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *routerHandlers) handlePause(w http.ResponseWriter, r *http.Request) {
	h.arena.Pause()
	writeJSON(w, map[string]string{"state": h.arena.RunState().String()})
}

func (h *routerHandlers) handleResume(w http.ResponseWriter, r *http.Request) {
	h.arena.Resume()
	writeJSON(w, map[string]string{"state": h.arena.RunState().String()})
}

// Diagnostics is the GET /api/diagnostics payload.
type Diagnostics struct {
	State     string         `json:"state"`
	Counters  arena.Counters `json:"counters"`
	Grid      spatial.Stats  `json:"grid"`
	RateLimit RateLimitStats `json:"rateLimit"`
	Journal   *journal.Stats `json:"journal,omitempty"`
}

func (h *routerHandlers) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	d := Diagnostics{
		State:     h.arena.RunState().String(),
		Counters:  h.arena.Counters(),
		Grid:      h.arena.GridStats(),
		RateLimit: h.limiter.Stats(),
	}
	if h.journalStats != nil {
		js := h.journalStats()
		d.Journal = &js
	}
	writeJSON(w, d)
}

func (h *routerHandlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	scene := preview.CaptureScene(h.arena)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.preview.EncodePNG(w, scene); err != nil {
		h.log.Error().Err(err).Msg("Rendering preview failed")
	}
}

// Helper functions (package-level for reuse)

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
