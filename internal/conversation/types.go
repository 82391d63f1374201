// ABOUTME: Domain types for agents, conversation threads, and messages
// ABOUTME: Role is a closed enum so every consumer handles all three cases

package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Agent is a persona registered with the agent directory.
type Agent struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Conversation is thread metadata as reported by the conversation directory.
// ThreadID is the stable, externally visible identifier; ID is a directory
// surrogate and carries no meaning beyond the directory itself.
type Conversation struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single entry in a thread.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// localKeyPrefix namespaces provisional thread keys. Server-assigned thread
// ids are bare UUIDs, so a prefixed key can never collide with a real one.
const localKeyPrefix = "local-"

// NewLocalKey returns a fresh provisional thread key for a conversation that
// has not yet been acknowledged by the completion service.
func NewLocalKey() string {
	return localKeyPrefix + uuid.New().String()
}

// IsLocalKey reports whether key is a provisional key rather than a
// server-assigned thread id.
func IsLocalKey(key string) bool {
	return strings.HasPrefix(key, localKeyPrefix)
}
