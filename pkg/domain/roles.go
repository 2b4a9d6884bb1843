package domain

// Role defines the sender of a chat message.
type Role string

const (
	// RoleUser indicates a message from the end user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the agent.
	RoleAssistant Role = "assistant"
	// RoleSystem indicates a gateway-generated message.
	RoleSystem Role = "system"
)
