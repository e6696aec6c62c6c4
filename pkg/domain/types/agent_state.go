package types

// AgentState represents the subscription state of a client sync agent
type AgentState string

const (
	AgentDisconnected AgentState = "disconnected"
	AgentConnecting   AgentState = "connecting"
	AgentConnected    AgentState = "connected"
	AgentReconnecting AgentState = "reconnecting"
)

// IsValid checks if the agent state is valid
func (s AgentState) IsValid() bool {
	switch s {
	case AgentDisconnected, AgentConnecting, AgentConnected, AgentReconnecting:
		return true
	default:
		return false
	}
}

// String returns the string representation of the agent state
func (s AgentState) String() string {
	return string(s)
}
