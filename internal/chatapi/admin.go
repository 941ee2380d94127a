package chatapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/utjfc/reg-agent/pkg/models"
)

// handleClearSession implements the chat endpoint's separate clearing
// endpoint (§6: "Clearing is a separate endpoint that empties the named
// session").
func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		h.jsonError(w, "session_id is required", http.StatusBadRequest)
		return
	}
	h.sessions.Clear(sessionID)
	h.jsonResponse(w, map[string]bool{"cleared": true})
}

// devSeedRequest describes a session to install directly into the store,
// bypassing the conversation entirely.
type devSeedRequest struct {
	SessionID string            `json:"session_id"`
	Agent     models.AgentName  `json:"agent"`
	Step      *int              `json:"step"`
	Metadata  map[string]string `json:"metadata"`
}

// handleDevSeed replaces the rearchitected source pattern's cheat-code
// string matching (§9: `"lah"`, `"sdh"` sentinels inside the chat handler)
// with a dedicated seeding endpoint, only ever registered when
// config.ServerConfig.DevEndpoints is set. It lets integration tests and
// manual QA drop a session directly onto any step/agent/metadata
// combination without replaying the full conversation that would
// otherwise be needed to reach it.
func (h *Handler) handleDevSeed(w http.ResponseWriter, r *http.Request) {
	var req devSeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "request body must be valid JSON", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		h.jsonError(w, "session_id is required", http.StatusBadRequest)
		return
	}

	h.sessions.GetOrCreate(req.SessionID)
	if req.Agent != "" {
		h.sessions.SetAgent(req.SessionID, req.Agent)
	}
	if req.Step != nil {
		h.sessions.SetStep(req.SessionID, req.Step)
	}
	if len(req.Metadata) > 0 {
		h.sessions.InjectMetadata(req.SessionID, req.Metadata)
	}

	h.jsonResponse(w, map[string]bool{"seeded": true})
}
