// ABOUTME: Delete cascades keeping agent, conversation, and message caches consistent
// ABOUTME: Reselects the active pointers when the deleted entity was active

package engine

import (
	"context"

	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// DeleteAgent removes the agent from the directory, drops every cached
// conversation and message list it owned, and reselects the active agent:
// the first remaining agent in original list order, or none. The active
// thread is cleared whenever the deleted agent was active.
func (e *Engine) DeleteAgent(ctx context.Context, agentID int64) error {
	if err := e.agents.DeleteAgent(ctx, agentID); err != nil {
		return err
	}

	e.mu.Lock()
	for i, a := range e.agentList {
		if a.ID == agentID {
			e.agentList = append(e.agentList[:i:i], e.agentList[i+1:]...)
			break
		}
	}
	wasActive := e.activeAgentID == agentID
	if wasActive {
		e.activeAgentID = 0
		if len(e.agentList) > 0 {
			e.activeAgentID = e.agentList[0].ID
		}
		e.activeThread = ""
	}
	next := e.activeAgentID
	e.mu.Unlock()

	e.store.RemoveForAgent(agentID)
	e.logger.Info("agent deleted", "agent_id", agentID)

	if wasActive && next != 0 {
		// Best effort; the newly active agent's threads may not be cached.
		if err := e.refreshConversations(ctx, next); err != nil {
			e.logger.Warn("conversation refresh after agent delete failed",
				"agent_id", next, "error", err)
		}
	}
	return nil
}

// DeleteConversation removes one thread from the directory and the cache.
// If it was the active thread, the first remaining conversation of the
// same agent becomes active, or none remain selected.
func (e *Engine) DeleteConversation(ctx context.Context, threadKey string) error {
	// Provisional threads exist only locally; the directory never saw them.
	if !conversation.IsLocalKey(threadKey) {
		if err := e.convos.DeleteConversation(ctx, threadKey); err != nil {
			return err
		}
	}

	e.store.RemoveConversation(threadKey)

	e.mu.Lock()
	if e.activeThread == threadKey {
		e.activeThread = ""
		if e.activeAgentID != 0 {
			if convs := e.store.Conversations(e.activeAgentID); len(convs) > 0 {
				e.activeThread = convs[0].ThreadID
				// Keep the store invariant: an active thread always has
				// an entry, even before its history is loaded.
				if _, ok := e.store.Messages(e.activeThread); !ok {
					e.store.SetMessages(e.activeThread, e.activeAgentID, nil)
				}
			}
		}
	}
	e.mu.Unlock()

	e.logger.Info("conversation deleted", "thread_key", threadKey)
	return nil
}
