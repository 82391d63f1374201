// ABOUTME: Per-agent cancellation tokens for in-flight exchanges
// ABOUTME: At most one live token per agent; aborts are identified by cause, not text

package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is the cancellation cause recorded when the user stops an
// exchange. Abort is distinguished from other failures by this cause,
// never by matching error text.
var ErrStopped = errors.New("request stopped by user")

// Controller issues at most one live cancellation token per agent.
// Cancellation is cooperative: the exchange observes the signal at its next
// stream read, finishes the event it already holds, and issues no further
// network reads.
type Controller struct {
	mu   sync.Mutex
	live map[int64]context.CancelCauseFunc
}

// NewController creates an empty controller.
func NewController() *Controller {
	return &Controller{live: make(map[int64]context.CancelCauseFunc)}
}

// Begin derives the cancellable context for a new exchange. It reports
// false, leaving all state untouched, when the agent already has a live
// exchange.
func (c *Controller) Begin(ctx context.Context, agentID int64) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live[agentID]; ok {
		return nil, false
	}
	exctx, cancel := context.WithCancelCause(ctx)
	c.live[agentID] = cancel
	return exctx, true
}

// Stop signals the agent's live token. Reports whether a token existed.
func (c *Controller) Stop(agentID int64) bool {
	c.mu.Lock()
	cancel, ok := c.live[agentID]
	c.mu.Unlock()

	if !ok {
		return false
	}
	cancel(ErrStopped)
	return true
}

// Finish discards the agent's token regardless of outcome. The context is
// cancelled if it never was, releasing its resources.
func (c *Controller) Finish(agentID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.live[agentID]
	if !ok {
		return
	}
	delete(c.live, agentID)
	cancel(context.Canceled)
}

// Active reports whether the agent currently has a live exchange.
func (c *Controller) Active(agentID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[agentID]
	return ok
}

// stopped reports whether ctx was cancelled by a user-initiated Stop.
func stopped(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStopped)
}
