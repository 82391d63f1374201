// ABOUTME: One exchange: a user submission driven from idle to a terminal outcome
// ABOUTME: Optimistic inserts, in-order delta application, promotion, abort and error finalization

package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/dpkirschner/find-me-a-job/internal/api"
	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// stopMarker is appended to the assistant message when an exchange is
// aborted, preserving whatever content had streamed in.
const stopMarker = "\n\n(Request stopped)"

// phase names the states an exchange moves through. Used for logging; the
// machine itself is the control flow of Submit.
type phase string

const (
	phaseSubmitting phase = "submitting"
	phaseStreaming  phase = "streaming"
	phaseCompleted  phase = "completed"
	phaseAborted    phase = "aborted"
	phaseFailed     phase = "failed"
)

// Submit drives one user submission to a terminal outcome and blocks until
// it finishes; callers that want a responsive frontend run it in a
// goroutine and watch Subscribe for progress.
//
// Guards: blank input, no selected agent, or an exchange already in flight
// for the agent are silent no-ops. Submit reports whether an exchange ran.
//
// The assistant message always ends in a readable terminal state: the
// accumulated tokens, an error description, or the tokens plus a stop
// marker. Decoded payloads are applied to the store strictly in decode
// order.
func (e *Engine) Submit(ctx context.Context, input string) bool {
	text := strings.TrimSpace(input)
	if text == "" {
		return false
	}

	e.mu.Lock()
	agent, ok := e.activeAgentLocked()
	threadID := e.activeThread
	e.mu.Unlock()
	if !ok {
		return false
	}

	exctx, ok := e.controller.Begin(ctx, agent.ID)
	if !ok {
		e.logger.Debug("submission dropped, exchange already active", "agent_id", agent.ID)
		return false
	}
	defer e.controller.Finish(agent.ID)

	// A fresh conversation gets a provisional key until the completion
	// service assigns a real thread id.
	key := threadID
	provisional := key == ""
	if provisional {
		key = conversation.NewLocalKey()
	}

	log := e.logger.With("agent_id", agent.ID, "thread_key", key)
	log.Debug("exchange started", "phase", phaseSubmitting, "provisional", provisional)

	e.store.Begin(key, agent.ID, text, e.now())

	stream, err := e.chat.StreamChat(exctx, api.ChatRequest{
		Message:  text,
		AgentID:  agent.ID,
		ThreadID: threadID,
	})
	if err != nil {
		if stopped(exctx) {
			e.finishAborted(log, agent.ID, key)
		} else {
			e.finishFailed(log, agent.ID, key, err)
		}
		return true
	}
	defer stream.Close()

	log.Debug("response received", "phase", phaseStreaming)

	for {
		// Observe cancellation between events: the payload already in
		// hand is finished, but no further read is issued.
		if exctx.Err() != nil {
			if stopped(exctx) {
				e.finishAborted(log, agent.ID, key)
			} else {
				e.finishFailed(log, agent.ID, key, context.Cause(exctx))
			}
			return true
		}

		payload, err := stream.Recv()
		if err == io.EOF {
			e.finishCompleted(exctx, log, agent.ID, key, provisional, stream.ThreadID)
			return true
		}
		if err != nil {
			if stopped(exctx) {
				e.finishAborted(log, agent.ID, key)
			} else {
				e.finishFailed(log, agent.ID, key, err)
			}
			return true
		}

		e.store.Append(key, payload)
		e.updates.Publish(Update{Kind: UpdateDelta, AgentID: agent.ID, ThreadKey: key, Delta: payload})
	}
}

// Stop aborts the active agent's in-flight exchange, if any.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	agentID := e.activeAgentID
	e.mu.Unlock()
	if agentID == 0 {
		return false
	}
	return e.controller.Stop(agentID)
}

// StopAgent aborts a specific agent's in-flight exchange.
func (e *Engine) StopAgent(agentID int64) bool {
	return e.controller.Stop(agentID)
}

// finishCompleted handles normal termination. A provisional thread that
// received a server-assigned id is promoted in the store, made active, and
// the agent's conversation list is refreshed from the directory.
func (e *Engine) finishCompleted(ctx context.Context, log *slog.Logger, agentID int64, key string, provisional bool, newThreadID string) {
	finalKey := key
	if provisional && newThreadID != "" {
		e.store.Promote(key, newThreadID)
		finalKey = newThreadID

		e.mu.Lock()
		if e.activeAgentID == agentID {
			e.activeThread = newThreadID
		}
		e.mu.Unlock()

		if err := e.refreshConversations(ctx, agentID); err != nil {
			log.Warn("conversation refresh after promotion failed", "error", err)
		}
	}

	log.Debug("exchange finished", "phase", phaseCompleted, "thread_id", finalKey)
	e.updates.Publish(Update{Kind: UpdateCompleted, AgentID: agentID, ThreadKey: finalKey})
}

// finishAborted appends the stop marker exactly once, preserving partial
// content. No promotion happens; an aborted provisional thread stays as a
// local-only stub that is never synced to the directory.
func (e *Engine) finishAborted(log *slog.Logger, agentID int64, key string) {
	e.store.Append(key, stopMarker)
	log.Debug("exchange finished", "phase", phaseAborted)
	e.updates.Publish(Update{Kind: UpdateAborted, AgentID: agentID, ThreadKey: key})
}

// finishFailed replaces the assistant content with the error description.
// Tokens appended before the failure are overwritten, not rolled back
// elsewhere; other agents' state is untouched.
func (e *Engine) finishFailed(log *slog.Logger, agentID int64, key string, err error) {
	e.store.ReplaceAssistant(key, err.Error())
	log.Warn("exchange failed", "phase", phaseFailed, "error", err)
	e.updates.Publish(Update{Kind: UpdateFailed, AgentID: agentID, ThreadKey: key, Err: err})
}
