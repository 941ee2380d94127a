// Package agents holds the three static agent definitions the engine
// activates for a session: Orchestrator, NewRegistration, and
// ReRegistration (§4.5). Definitions are immutable after process start.
package agents

import "github.com/utjfc/reg-agent/pkg/models"

const orchestratorInstructions = `You are the front-of-house assistant for a youth football club's
registration chatbot. Answer general questions about the club and, when
asked, use db_query to check whether a team and age group is supported.
You do not run the registration workflow yourself — if the parent wants to
register or re-register a child, tell them to reply with their
registration code.`

const newRegistrationInstructions = `You are guiding a parent through a new player registration for a youth
football club, one step at a time. Each turn you will be given the current
step's task instruction: follow it exactly, including what formats to
accept, how to normalise the parent's answer, and when to advance to the
next step. Never skip ahead of the step you were given.`

const reRegistrationInstructions = `You are guiding a parent through re-registering a returning player for a
youth football club for the current season. Use player_lookup to confirm
the prior registration and copy_record_to_current_season to carry it
forward, then continue with whichever of the kit/photo/payment steps the
task instruction asks for.`

// NewOrchestrator builds the Orchestrator agent definition: general chat
// and read-only team lookups, no step pointer (§4.5).
func NewOrchestrator(model string, mode models.ExecutionMode) models.AgentDefinition {
	return models.AgentDefinition{
		Name:             models.AgentOrchestrator,
		Model:            model,
		BaseInstructions: orchestratorInstructions,
		Tools:            []string{"db_query"},
		Mode:             mode,
	}
}

// NewNewRegistration builds the NewRegistration agent definition: the
// 35-step workflow's full tool set (§4.5).
func NewNewRegistration(model string, mode models.ExecutionMode) models.AgentDefinition {
	return models.AgentDefinition{
		Name:             models.AgentNewRegistration,
		Model:            model,
		BaseInstructions: newRegistrationInstructions,
		Tools: []string{
			"address_lookup",
			"address_validate",
			"dob_validate",
			"payment_token_create",
			"write_registration",
			"shirt_number_check",
			"write_kit",
			"put_image",
			"write_photo_url",
			"check_kit_needed",
		},
		Mode: mode,
	}
}

// NewReRegistration builds the ReRegistration agent definition: the
// resumption workflow's tool set, which includes the kit/photo/payment
// tools NewRegistration also uses (§4.5).
func NewReRegistration(model string, mode models.ExecutionMode) models.AgentDefinition {
	return models.AgentDefinition{
		Name:             models.AgentReRegistration,
		Model:            model,
		BaseInstructions: reRegistrationInstructions,
		Tools: []string{
			"player_lookup",
			"copy_record_to_current_season",
			"payment_token_create",
			"shirt_number_check",
			"write_kit",
			"put_image",
			"write_photo_url",
			"check_kit_needed",
		},
		Mode: mode,
	}
}

// Registry is the process-start set of all three agent definitions, keyed
// by name, built once and never mutated.
type Registry struct {
	definitions map[models.AgentName]models.AgentDefinition
}

// NewRegistry builds the three agent definitions for the given model name
// and execution mode. The Orchestrator is the only agent whose mode
// the `remote_tools` feature flag affects (§7 Configuration surface); the
// two workflow agents always run in local mode since every tool they use
// has a local in-process handler grounded on internal/adapters.
func NewRegistry(model string, orchestratorMode models.ExecutionMode) *Registry {
	return &Registry{
		definitions: map[models.AgentName]models.AgentDefinition{
			models.AgentOrchestrator:    NewOrchestrator(model, orchestratorMode),
			models.AgentNewRegistration: NewNewRegistration(model, models.ExecutionLocal),
			models.AgentReRegistration:  NewReRegistration(model, models.ExecutionLocal),
		},
	}
}

// Get returns the definition for name.
func (r *Registry) Get(name models.AgentName) (models.AgentDefinition, bool) {
	def, ok := r.definitions[name]
	return def, ok
}
