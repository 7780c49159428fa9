package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// GiveawayCommands is what the command surface needs from the state
// machine. Illegal-state no-ops return nil; only a start conflict is
// reported back, and even that only as a boolean.
type GiveawayCommands interface {
	Start(ownerID string, durationMs int64) error
	Pause() error
	Resume() error
	Cancel() error
}

// CommandHandler exposes the operator command surface: four fire-and-forget
// triggers into the state machine.
type CommandHandler struct {
	commands GiveawayCommands
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(commands GiveawayCommands) *CommandHandler {
	return &CommandHandler{commands: commands}
}

type startRequest struct {
	OwnerID    string `json:"owner_id"`
	DurationMs int64  `json:"duration_ms"`
}

type commandResponse struct {
	OK bool `json:"ok"`
}

// HandleStart handles POST /api/giveaway/start.
func (h *CommandHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.DurationMs <= 0 {
		http.Error(w, "owner_id and positive duration_ms are required", http.StatusBadRequest)
		return
	}

	err := h.commands.Start(req.OwnerID, req.DurationMs)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", req.OwnerID).Msg("start command rejected")
	}
	writeAck(w, err == nil)
}

// HandlePause handles POST /api/giveaway/pause.
func (h *CommandHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handleSimple(w, r, "pause", h.commands.Pause)
}

// HandleResume handles POST /api/giveaway/resume.
func (h *CommandHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.handleSimple(w, r, "resume", h.commands.Resume)
}

// HandleCancel handles POST /api/giveaway/cancel.
func (h *CommandHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleSimple(w, r, "cancel", h.commands.Cancel)
}

// handleSimple runs a no-argument command. No-ops still acknowledge
// success; the endpoints are idempotent against illegal states.
func (h *CommandHandler) handleSimple(w http.ResponseWriter, r *http.Request, name string, fn func() error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := fn(); err != nil {
		log.Warn().Err(err).Str("command", name).Msg("command failed")
		writeAck(w, false)
		return
	}
	writeAck(w, true)
}

func writeAck(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commandResponse{OK: ok}); err != nil {
		log.Error().Err(err).Msg("failed to encode command response")
	}
}

// RegisterRoutes registers the command endpoints with an HTTP mux.
func (h *CommandHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/giveaway/start", h.HandleStart)
	mux.HandleFunc("/api/giveaway/pause", h.HandlePause)
	mux.HandleFunc("/api/giveaway/resume", h.HandleResume)
	mux.HandleFunc("/api/giveaway/cancel", h.HandleCancel)
}
