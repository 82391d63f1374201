// ABOUTME: In-memory fan-out of exchange progress to interested observers
// ABOUTME: Per exchange: zero or more deltas, then exactly one terminal update

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// UpdateKind classifies an exchange progress notification.
type UpdateKind string

const (
	// UpdateDelta carries one decoded payload appended to the assistant message.
	UpdateDelta UpdateKind = "delta"
	// UpdateCompleted signals normal termination of an exchange.
	UpdateCompleted UpdateKind = "completed"
	// UpdateAborted signals user-initiated cancellation.
	UpdateAborted UpdateKind = "aborted"
	// UpdateFailed signals any other terminal failure.
	UpdateFailed UpdateKind = "failed"
)

// Update describes exchange progress for one agent. ThreadKey is the store
// key the content lives under at the time of the update, so an exchange
// that was promoted reports its real thread id in the terminal update.
//
// Cardinality contract: for every exchange a subscriber receives zero or
// more UpdateDelta values followed by exactly one terminal update.
type Update struct {
	Kind      UpdateKind
	AgentID   int64
	ThreadKey string
	Delta     string // set for UpdateDelta
	Err       error  // set for UpdateFailed
}

// Terminal reports whether u ends an exchange.
func (u Update) Terminal() bool {
	return u.Kind != UpdateDelta
}

// Broadcaster provides in-memory pub/sub for exchange updates. Subscribers
// register for one agent and receive that agent's updates as they happen.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int64]map[string]chan Update // agentID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[int64]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer for one agent's updates. Returns the
// update channel and a subscription id for explicit unsubscription. The
// subscription is cleaned up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, agentID int64) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[agentID]; !ok {
		b.subscribers[agentID] = make(map[string]chan Update)
	}
	b.subscribers[agentID][subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(agentID, subID)
	}()

	return ch, subID
}

// Publish delivers an update to every subscriber of the agent.
// Non-blocking: updates are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(u Update) {
	b.mu.RLock()
	subs := b.subscribers[u.AgentID]
	targets := make([]chan Update, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"agent_id", u.AgentID,
				"kind", u.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(agentID int64, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[agentID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, agentID)
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for agentID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, agentID)
	}
}
