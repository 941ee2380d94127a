package models

// ExecutionMode selects how an agent's tool calls are dispatched. Local
// dispatch calls the handler in-process; remote lets the LLM provider
// attach to a remote tool server and manage the tool-call lifecycle
// itself (§4.1 dual-mode execution).
type ExecutionMode string

const (
	ExecutionLocal  ExecutionMode = "local"
	ExecutionRemote ExecutionMode = "remote"
)

// AgentDefinition is an immutable, process-start configuration for one of
// the three named agents (§4.5).
type AgentDefinition struct {
	Name             AgentName
	Model            string
	BaseInstructions string
	Tools            []string
	Mode             ExecutionMode
}

// HasTool reports whether name is in the agent's permitted tool set.
func (a AgentDefinition) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}
