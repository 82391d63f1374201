// ABOUTME: In-memory cache of per-thread message lists and per-agent thread metadata
// ABOUTME: Promotion renames a provisional key to its server-assigned id in one locked step

package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store caches message lists keyed by thread key (a real thread id or a
// provisional local key) and conversation metadata keyed by owning agent.
// All methods are safe for concurrent use; each mutation is a single locked
// step, so readers never observe a half-applied rename.
type Store struct {
	mu            sync.RWMutex
	messages      map[string][]Message
	conversations map[int64][]Conversation
	owners        map[string]int64 // thread key -> owning agent
	logger        *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		messages:      make(map[string][]Message),
		conversations: make(map[int64][]Conversation),
		owners:        make(map[string]int64),
		logger:        logger.With("component", "store"),
	}
}

// Begin inserts the optimistic user message and an empty assistant
// placeholder under key in one mutation. The key is registered to agentID
// so a later cascade delete can find it.
func (s *Store) Begin(key string, agentID int64, userContent string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[key] = append(s.messages[key],
		Message{Role: RoleUser, Content: userContent, CreatedAt: now},
		Message{Role: RoleAssistant, Content: "", CreatedAt: now},
	)
	s.owners[key] = agentID
}

// Append concatenates delta onto the last assistant message under key.
// The assistant placeholder must already exist; calling Append without one
// is a programming error, not a recoverable condition.
func (s *Store) Append(key, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutateAssistantLocked(key, func(content string) string { return content + delta })
}

// ReplaceAssistant overwrites the last assistant message content under key.
// Used for error finalization, where partial tokens are replaced by the
// error description. Same placeholder precondition as Append.
func (s *Store) ReplaceAssistant(key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutateAssistantLocked(key, func(string) string { return content })
}

func (s *Store) mutateAssistantLocked(key string, fn func(string) string) {
	msgs, ok := s.messages[key]
	if !ok {
		panic(fmt.Sprintf("conversation: no message list for key %q", key))
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			msgs[i].Content = fn(msgs[i].Content)
			return
		}
	}
	panic(fmt.Sprintf("conversation: no assistant placeholder under key %q", key))
}

// Promote renames the message list under tempKey to realKey as one state
// transition. No reader can observe both keys populated, or neither.
func (s *Store) Promote(tempKey, realKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.messages[tempKey]
	if !ok {
		panic(fmt.Sprintf("conversation: promote of unknown key %q", tempKey))
	}
	s.messages[realKey] = msgs
	delete(s.messages, tempKey)

	if agentID, ok := s.owners[tempKey]; ok {
		s.owners[realKey] = agentID
		delete(s.owners, tempKey)
	}

	s.logger.Debug("thread promoted", "temp_key", tempKey, "thread_id", realKey)
}

// Messages returns a copy of the message list under key. The second return
// reports whether the key exists at all.
func (s *Store) Messages(key string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.messages[key]
	if !ok {
		return nil, false
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// SetMessages replaces the message list under key, registering agentID as
// the owner. Used when loading history from the conversation directory.
func (s *Store) SetMessages(key string, agentID int64, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[key] = msgs
	s.owners[key] = agentID
}

// Conversations returns a copy of the metadata list for agentID.
func (s *Store) Conversations(agentID int64) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := s.conversations[agentID]
	out := make([]Conversation, len(convs))
	copy(out, convs)
	return out
}

// SetConversations replaces the metadata list for agentID, typically after
// a refresh from the conversation directory.
func (s *Store) SetConversations(agentID int64, convs []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[agentID] = convs
}

// RemoveConversation drops one metadata entry and its message list.
func (s *Store) RemoveConversation(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, key)
	delete(s.owners, key)

	// Metadata may exist without a cached message list (listed but never
	// opened), so search every agent's list rather than trusting owners.
	for agentID, convs := range s.conversations {
		for i, c := range convs {
			if c.ThreadID == key {
				s.conversations[agentID] = append(convs[:i:i], convs[i+1:]...)
				return
			}
		}
	}
}

// RemoveForAgent drops every conversation metadata entry and message list
// owned by agentID.
func (s *Store) RemoveForAgent(agentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, agentID)
	for key, owner := range s.owners {
		if owner == agentID {
			delete(s.messages, key)
			delete(s.owners, key)
		}
	}
}
