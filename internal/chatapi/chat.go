package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/utjfc/reg-agent/internal/routing"
	"github.com/utjfc/reg-agent/internal/workflow"
	"github.com/utjfc/reg-agent/pkg/models"
)

// chatRequest is the POST /chat request body (§6).
type chatRequest struct {
	UserMessage   string `json:"user_message"`
	SessionID     string `json:"session_id"`
	LastAgent     string `json:"last_agent,omitempty"`
	RoutineNumber *int   `json:"routine_number,omitempty"`
}

// chatResponse is the POST /chat response body (§6). LastAgent and
// RoutineNumber are authoritative on return; the client echoes them on its
// next call.
type chatResponse struct {
	Response      string  `json:"response"`
	LastAgent     *string `json:"last_agent,omitempty"`
	RoutineNumber *int    `json:"routine_number,omitempty"`
	SessionID     string  `json:"session_id"`
}

// handleChat implements POST /chat (§6). Malformed requests missing
// user_message or session_id get a client error status per §7's
// propagation policy; every other outcome — including domain and fatal
// engine errors — returns 200 with a user-visible reply, since the chat
// channel never surfaces a non-200 for anything but a malformed request.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "request body must be valid JSON", http.StatusBadRequest)
		return
	}
	req.UserMessage = strings.TrimSpace(req.UserMessage)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.UserMessage == "" || req.SessionID == "" {
		h.jsonError(w, "user_message and session_id are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientTimeout(r))
	defer cancel()

	turn := h.advanceSession(ctx, req.SessionID, req.UserMessage)

	agent := string(turn.Agent)
	h.jsonResponse(w, chatResponse{
		Response:      turn.Reply,
		LastAgent:     &agent,
		RoutineNumber: turn.Step,
		SessionID:     req.SessionID,
	})
}

// advanceSession runs one chat turn for sessionID: classify a fresh
// session's message via C4, enter the matched workflow on success, or fall
// through to the Orchestrator's free-form chat (§4.4, §4.6). It never
// returns an error — every failure mode maps to a user-visible apology
// turn per §7, since the chat channel only ever surfaces a transport
// error for a malformed request, never a domain or engine failure.
func (h *Handler) advanceSession(ctx context.Context, sessionID, message string) *workflow.Turn {
	session := h.sessions.GetOrCreate(sessionID)

	if session.Step == nil {
		result, err := h.classifier.Classify(ctx, message)
		if err != nil {
			reply := classificationErrorMessage(err)
			h.sessions.Append(sessionID, models.Turn{Role: models.RoleUser, Content: message})
			h.sessions.Append(sessionID, models.Turn{Role: models.RoleAssistant, Content: reply, AgentName: session.Agent})
			return &workflow.Turn{Reply: reply, Agent: session.Agent}
		}
		switch result.Route {
		case models.RouteNewRegistration, models.RouteReRegistration:
			h.enterWorkflow(sessionID, result)
		default:
			turn, err := h.engine.Chat(ctx, sessionID, message)
			if err != nil {
				h.logger.Error(ctx, "chatapi: orchestrator turn failed", "session_id", sessionID, "error", err)
				return &workflow.Turn{Reply: engineErrorMessage(), Agent: models.AgentOrchestrator}
			}
			return turn
		}
	}

	turn, err := h.engine.Advance(ctx, sessionID, message)
	if err != nil {
		h.logger.Error(ctx, "chatapi: workflow turn failed", "session_id", sessionID, "error", err)
		agent := models.AgentOrchestrator
		if current, ok := h.sessions.Get(sessionID); ok {
			agent = current.Agent
		}
		return &workflow.Turn{Reply: engineErrorMessage(), Agent: agent}
	}
	return turn
}

// enterWorkflow injects the classified registration code's metadata and
// moves the session onto the matched agent/entry step (§4.4 "caller
// injects metadata into the session and sets the step pointer").
func (h *Handler) enterWorkflow(sessionID string, result routing.Result) {
	fields := map[string]string{
		"team":      result.Metadata.Team,
		"age_group": result.Metadata.AgeGroup,
		"season":    result.Metadata.Season,
	}
	if result.Metadata.ChildFirstName != "" {
		fields["child_first_name"] = result.Metadata.ChildFirstName
	}
	if result.Metadata.ChildLastName != "" {
		fields["child_last_name"] = result.Metadata.ChildLastName
	}
	h.sessions.InjectMetadata(sessionID, fields)

	entryStep := 1
	agent := models.AgentNewRegistration
	if result.Route == models.RouteReRegistration {
		entryStep = 200
		agent = models.AgentReRegistration
	}
	h.sessions.SetAgent(sessionID, agent)
	h.sessions.SetStep(sessionID, &entryStep)
}

// classificationErrorMessage renders a routing classification error as the
// short, user-facing explanation §7 calls for on input errors.
func classificationErrorMessage(err error) string {
	switch {
	case errors.Is(err, routing.ErrInvalidSeason):
		return "That registration code is for a different season. Please check the code and try again."
	case errors.Is(err, routing.ErrUnknownTeam):
		return "We don't recognise that team and age group. Please check the code and try again."
	case errors.Is(err, routing.ErrMissingPlayerName):
		return "A re-registration code needs the player's first and last name at the end, e.g. \"100-tigers-u10-2526-Jane-Smith\"."
	case errors.Is(err, routing.ErrUnexpectedPlayerName):
		return "A new-registration code shouldn't include a player name. Please remove it and try again."
	default:
		return "That registration code doesn't look right. Please check it and try again."
	}
}

// engineErrorMessage is the apology surfaced on exhausted LLM retries or a
// fatal workflow error (§7): a user-visible apology, with the step pointer
// left untouched so the user can resend.
func engineErrorMessage() string {
	return "Sorry, something went wrong on our end. Please try that again in a moment, or email support if it keeps happening."
}
