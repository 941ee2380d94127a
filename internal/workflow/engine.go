// Package workflow implements the Workflow Engine (§4.6): the turn
// algorithm that advances a session through the registration state
// machine one user-visible turn at a time by composing an agent's base
// instructions with the active step's task template, dispatching any tool
// calls the model requests, and applying server-side routing hops.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/utjfc/reg-agent/internal/agents"
	"github.com/utjfc/reg-agent/internal/llm"
	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/internal/sessions"
	"github.com/utjfc/reg-agent/internal/tools"
	"github.com/utjfc/reg-agent/pkg/models"
)

// recordIDCaptureTools names the tool calls whose JSON result carries the
// registration record's database ID. The engine mirrors that ID into
// session metadata under "record_id" so the async photo pipeline (C8) can
// attach an uploaded photo to the right record without the HTTP client
// having to track or resend a database identifier (§6's upload endpoints
// only ever carry session_id, not a record ID).
var recordIDCaptureTools = map[string]bool{
	"write_registration":            true,
	"copy_record_to_current_season": true,
}

// maxServerHops bounds the engine's internal re-invocation loop for
// server-side steps (16 and 22) so a misconfigured step graph can never
// spin forever (§4.6 "a safety counter bounds this to 4 internal hops").
const maxServerHops = 4

// ErrToolLoop is fatal: the model requested a third consecutive round of
// tool calls within a single user turn, which the two-phase invoke
// contract never allows (§4.6 step 5).
var ErrToolLoop = errors.New("workflow: tool loop: third tool-call round in one turn")

// ErrUnknownStep is fatal: the model returned a step number that is either
// reserved or not part of the declared graph at all (§4.6 "tie-breaks").
var ErrUnknownStep = errors.New("workflow: unknown step")

// ErrServerHopLimit is fatal: the engine exceeded maxServerHops while
// resolving a chain of server-side transitions without a user-visible
// step in between.
var ErrServerHopLimit = errors.New("workflow: exceeded server-side hop limit")

// Turn is the outcome of advancing one session by one user message.
type Turn struct {
	Reply string
	Agent models.AgentName
	Step  *int
}

// Engine drives the turn algorithm of §4.6 for a single agent's workflow.
// It has no knowledge of routing (C4) or of which agent is active; callers
// set the session's agent and entry step before the first call into a
// workflow (see §4.4's "caller injects metadata... and sets the step
// pointer").
type Engine struct {
	sessionStore  sessions.Store
	agentRegistry *agents.Registry
	toolRegistry  *tools.Registry
	dispatcher    *tools.Dispatcher
	provider      llm.Provider
	maxTokens     int
	metrics       *observability.Metrics
}

// New builds an Engine over the given collaborators.
func New(sessionStore sessions.Store, agentRegistry *agents.Registry, toolRegistry *tools.Registry, provider llm.Provider, maxTokens int) *Engine {
	return &Engine{
		sessionStore:  sessionStore,
		agentRegistry: agentRegistry,
		toolRegistry:  toolRegistry,
		dispatcher:    tools.NewDispatcher(toolRegistry),
		provider:      provider,
		maxTokens:     maxTokens,
	}
}

// SetMetrics attaches a metrics recorder; every invoke() call afterward
// records its latency, status, and token usage. Safe to call once at
// startup — invoke tolerates a nil recorder.
func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	e.metrics = metrics
}

// invoke wraps provider.Invoke with latency, status, and token-usage
// recording against the C7 LLM metrics (§4.7's invoke() contract).
func (e *Engine) invoke(ctx context.Context, req *llm.CompletionRequest) (*llm.InvokeResult, error) {
	start := time.Now()
	result, err := e.provider.Invoke(ctx, req)
	if e.metrics == nil {
		return result, err
	}
	status := "success"
	promptTokens, completionTokens := 0, 0
	if err != nil {
		status = "error"
	} else if result != nil {
		promptTokens, completionTokens = result.PromptTokens, result.CompletionTokens
	}
	e.metrics.RecordLLMRequest("anthropic", req.Model, status, time.Since(start).Seconds(), promptTokens, completionTokens)
	return result, err
}

// Advance runs the turn algorithm for sessionID against userMessage,
// looping over server-side hops until it reaches a user-visible step or a
// terminal step (§4.6 "Server-side transitions").
func (e *Engine) Advance(ctx context.Context, sessionID, userMessage string) (*Turn, error) {
	session := e.sessionStore.GetOrCreate(sessionID)

	agent, ok := e.agentRegistry.Get(session.Agent)
	if !ok {
		return nil, fmt.Errorf("workflow: no agent definition for %q", session.Agent)
	}

	for hop := 0; ; hop++ {
		if hop > maxServerHops {
			return nil, ErrServerHopLimit
		}

		_, def, err := e.currentStep(session)
		if err != nil {
			return nil, err
		}

		// The user's message is consumed exactly once per Advance call, on
		// the first hop. Server-side hops that follow within the same call
		// re-use that same message as context without appending it again
		// (§4.6 "the previous user message re-used as the context anchor").
		appendUser := hop == 0

		reply, nextStep, err := e.runStep(ctx, session, agent, def, userMessage, appendUser)
		if err != nil {
			return nil, err
		}

		e.sessionStore.Append(sessionID, models.Turn{
			Role:      models.RoleAssistant,
			Content:   reply,
			AgentName: agent.Name,
		})
		e.sessionStore.SetStep(sessionID, nextStep)
		session = e.sessionStore.GetOrCreate(sessionID)

		if nextStep == nil {
			return &Turn{Reply: reply, Agent: session.Agent, Step: nil}, nil
		}
		if next, ok := Lookup(*nextStep); ok && next.ServerSide {
			continue
		}
		return &Turn{Reply: reply, Agent: session.Agent, Step: nextStep}, nil
	}
}

// Chat runs one free-form Orchestrator turn (§4.5): general chat plus
// read-only db_query, no task template and no forced step transition. The
// caller (C9's chat handler, via C4's routing classifier) only invokes Chat
// when the session has no active step; a registration-code match switches
// the session onto NewRegistration/ReRegistration and Advance takes over
// from there.
func (e *Engine) Chat(ctx context.Context, sessionID, userMessage string) (*Turn, error) {
	session := e.sessionStore.GetOrCreate(sessionID)
	agent, ok := e.agentRegistry.Get(models.AgentOrchestrator)
	if !ok {
		return nil, fmt.Errorf("workflow: no agent definition for orchestrator")
	}

	def := StepDef{Number: 0, Tools: agent.Tools}
	reply, _, err := e.runStep(ctx, session, agent, def, userMessage, true)
	if err != nil {
		return nil, err
	}

	e.sessionStore.Append(sessionID, models.Turn{
		Role:      models.RoleAssistant,
		Content:   reply,
		AgentName: agent.Name,
	})

	return &Turn{Reply: reply, Agent: agent.Name, Step: nil}, nil
}

// currentStep resolves the session's step pointer to a StepDef, applying
// the reserved/unknown-step checks of §4.6.
func (e *Engine) currentStep(session *models.Session) (int, StepDef, error) {
	if session.Step == nil {
		return 0, StepDef{}, fmt.Errorf("workflow: session %q has no active step", session.ID)
	}
	step := *session.Step
	if IsReserved(step) {
		return step, StepDef{}, fmt.Errorf("%w: %d is reserved", ErrUnknownStep, step)
	}
	def, ok := Lookup(step)
	if !ok {
		return step, StepDef{}, fmt.Errorf("%w: %d has no task template", ErrUnknownStep, step)
	}
	return step, def, nil
}

// runStep performs one call to runStep's "steps 3-6" of §4.6: compose
// messages, invoke the LLM, dispatch any tool calls with a two-phase
// re-invoke, and parse the structured reply. It returns the reply text and
// the session's next step pointer.
func (e *Engine) runStep(ctx context.Context, session *models.Session, agent models.AgentDefinition, def StepDef, userMessage string, appendUser bool) (string, *int, error) {
	schemas, err := e.toolRegistry.SchemasFor(def.Tools)
	if err != nil {
		return "", nil, fmt.Errorf("workflow: resolving tool schemas for step %d: %w", def.Number, err)
	}

	system := agent.BaseInstructions
	if def.Task != "" {
		system += "\n\n" + substitute(def.Task, session)
	}
	messages := historyMessages(session)
	if appendUser {
		messages = append(messages, llm.Message{Role: models.RoleUser, Content: userMessage})
		e.sessionStore.Append(session.ID, models.Turn{Role: models.RoleUser, Content: userMessage})
	}

	req := &llm.CompletionRequest{
		Model:     agent.Model,
		System:    system,
		Messages:  messages,
		Tools:     schemas,
		MaxTokens: e.maxTokens,
	}

	result, err := e.invoke(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("workflow: step %d: %w", def.Number, err)
	}

	toolRounds := 0
	validationRetried := false
	for len(result.ToolCalls) > 0 {
		toolRounds++
		if toolRounds > 2 {
			return "", nil, ErrToolLoop
		}

		results, dispatchErr := e.dispatcher.Dispatch(ctx, result.ToolCalls)
		for i, call := range result.ToolCalls {
			if i >= len(results) {
				break
			}
			e.appendToolTurn(session.ID, agent.Name, call, results[i])
			e.captureRecordID(session.ID, call, results[i])
			messages = append(messages,
				llm.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
				llm.Message{Role: models.RoleTool, Content: results[i].Content, ToolCallID: results[i].ToolCallID},
			)
		}
		if dispatchErr != nil {
			fatalErr, recoverable := e.classifyDispatchError(dispatchErr, validationRetried)
			if fatalErr != nil {
				return "", nil, fatalErr
			}

			// One self-correction attempt: fold the schema error into the
			// conversation as a tool-error result and let the model retry
			// the call with corrected arguments (§4.1).
			validationRetried = true
			failedCall := result.ToolCalls[len(results)]
			errResult := models.ToolResult{
				ToolCallID: failedCall.ID,
				Content:    fmt.Sprintf(`{"error":%q}`, recoverable.Error()),
				IsError:    true,
			}
			e.appendToolTurn(session.ID, agent.Name, failedCall, errResult)
			messages = append(messages,
				llm.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{failedCall}},
				llm.Message{Role: models.RoleTool, Content: errResult.Content, ToolCallID: errResult.ToolCallID},
			)

			req.Messages = messages
			result, err = e.invoke(ctx, req)
			if err != nil {
				return "", nil, fmt.Errorf("workflow: step %d: %w", def.Number, err)
			}
			continue
		}

		req.Messages = messages
		result, err = e.invoke(ctx, req)
		if err != nil {
			return "", nil, fmt.Errorf("workflow: step %d: %w", def.Number, err)
		}
	}

	if result.Reply == nil {
		return "", nil, fmt.Errorf("workflow: step %d: no structured reply returned", def.Number)
	}
	return result.Reply.AgentFinalResponse, result.Reply.RoutineNumber, nil
}

// classifyDispatchError maps a tools.Dispatcher error to the engine-level
// fatal taxonomy, or signals that the caller should run its one
// self-correction retry. retried reports whether runStep has already
// spent that retry within the current turn.
//
// A ToolValidationError on its first occurrence is recoverable: fatalErr
// is nil and recoverable is returned for the caller to fold into the
// conversation and re-invoke once. A second ToolValidationError within
// the same turn, any ToolNotFound, and any ToolDispatchError are all
// fatal (§4.1, §5).
func (e *Engine) classifyDispatchError(err error, retried bool) (fatalErr error, recoverable *tools.ToolValidationError) {
	var notFound *tools.ToolNotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("workflow: %w", err), nil
	}
	var validationErr *tools.ToolValidationError
	if errors.As(err, &validationErr) {
		if retried {
			return fmt.Errorf("workflow: %w", &tools.ToolDispatchError{Name: validationErr.Name, Err: validationErr.Err}), nil
		}
		return nil, validationErr
	}
	var dispatchErr *tools.ToolDispatchError
	if errors.As(err, &dispatchErr) {
		return fmt.Errorf("workflow: %w", err), nil
	}
	return err, nil
}

// captureRecordID mirrors a record_id field from a capture-worthy tool's
// result into session metadata (see recordIDCaptureTools). Malformed or
// absent fields are ignored; the LLM's own copy of the ID in its message
// history remains the source of truth for its own tool calls.
func (e *Engine) captureRecordID(sessionID string, call models.ToolCall, result models.ToolResult) {
	if result.IsError || !recordIDCaptureTools[call.Name] {
		return
	}
	var parsed struct {
		RecordID string `json:"record_id"`
	}
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil || parsed.RecordID == "" {
		return
	}
	e.sessionStore.InjectMetadata(sessionID, map[string]string{"record_id": parsed.RecordID})
}

func (e *Engine) appendToolTurn(sessionID string, agentName models.AgentName, call models.ToolCall, result models.ToolResult) {
	e.sessionStore.Append(sessionID, models.Turn{
		Role:        models.RoleTool,
		AgentName:   agentName,
		ToolName:    call.Name,
		ToolArgs:    string(call.Arguments),
		ToolCallID:  result.ToolCallID,
		ToolResult:  result.Content,
		ToolIsError: result.IsError,
	})
}

// historyMessages converts the session's stored turns into llm.Message
// values. Tool turns are re-expressed as the assistant tool-call/tool-result
// pair the provider expects, since that's how they were constructed when
// first appended.
func historyMessages(session *models.Session) []llm.Message {
	messages := make([]llm.Message, 0, len(session.Turns))
	for _, turn := range session.Turns {
		switch turn.Role {
		case models.RoleTool:
			messages = append(messages,
				llm.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{
					ID:   turn.ToolCallID,
					Name: turn.ToolName,
				}}},
				llm.Message{Role: models.RoleTool, Content: turn.ToolResult, ToolCallID: turn.ToolCallID},
			)
		default:
			messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	return messages
}

// substitute resolves {placeholder} fields in a task template from session
// metadata (§4.6 step 2: "child name, parent name, team, age group").
func substitute(task string, session *models.Session) string {
	if len(session.Metadata) == 0 {
		return task
	}
	result := task
	for key, value := range session.Metadata {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
