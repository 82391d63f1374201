// ABOUTME: Conversation engine owning session state: agents, threads, exchanges
// ABOUTME: Coordinates the store, directory services, and completion stream

package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dpkirschner/find-me-a-job/internal/api"
	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// ErrAgentNotFound indicates the referenced agent is not in the session.
var ErrAgentNotFound = errors.New("agent not found")

// ChatStreamer issues one completion request and returns the open stream.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error)
}

// AgentDirectory is the engine's view of the agent directory service.
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]conversation.Agent, error)
	CreateAgent(ctx context.Context, name, systemPrompt string) (conversation.Agent, error)
	UpdateAgent(ctx context.Context, id int64, name, systemPrompt *string) (conversation.Agent, error)
	DeleteAgent(ctx context.Context, id int64) error
}

// ConversationDirectory is the engine's view of the conversation directory
// service.
type ConversationDirectory interface {
	ListConversations(ctx context.Context, agentID int64) ([]conversation.Conversation, error)
	CreateConversation(ctx context.Context, agentID int64, threadID string) (conversation.Conversation, error)
	ListMessages(ctx context.Context, threadID string) ([]conversation.Message, error)
	DeleteConversation(ctx context.Context, threadID string) error
}

// Engine drives multi-thread chat sessions. It owns the active-agent and
// active-thread pointers, runs one exchange per agent at a time, and keeps
// the conversation store consistent across promotions and delete cascades.
//
// Independent agents' exchanges run concurrently; session state is guarded
// by one mutex and the store handles its own locking.
type Engine struct {
	chat       ChatStreamer
	agents     AgentDirectory
	convos     ConversationDirectory
	store      *conversation.Store
	controller *Controller
	updates    *Broadcaster
	logger     *slog.Logger
	now        func() time.Time

	mu            sync.Mutex
	agentList     []conversation.Agent
	activeAgentID int64  // 0 when no agent is selected
	activeThread  string // "" when no thread is selected
}

// New creates an engine. Pass nil logger for default.
func New(chat ChatStreamer, agents AgentDirectory, convos ConversationDirectory, store *conversation.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")
	return &Engine{
		chat:       chat,
		agents:     agents,
		convos:     convos,
		store:      store,
		controller: NewController(),
		updates:    NewBroadcaster(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the engine's time source. Tests use this to get
// deterministic message timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Store exposes the conversation cache for read access by frontends.
func (e *Engine) Store() *conversation.Store {
	return e.store
}

// Subscribe registers an observer for one agent's exchange updates.
func (e *Engine) Subscribe(ctx context.Context, agentID int64) (<-chan Update, string) {
	return e.updates.Subscribe(ctx, agentID)
}

// Agents returns a copy of the session's agent list in load order.
func (e *Engine) Agents() []conversation.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]conversation.Agent, len(e.agentList))
	copy(out, e.agentList)
	return out
}

// ActiveAgent returns the selected agent, if any.
func (e *Engine) ActiveAgent() (conversation.Agent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeAgentLocked()
}

func (e *Engine) activeAgentLocked() (conversation.Agent, bool) {
	if e.activeAgentID == 0 {
		return conversation.Agent{}, false
	}
	for _, a := range e.agentList {
		if a.ID == e.activeAgentID {
			return a, true
		}
	}
	return conversation.Agent{}, false
}

// ActiveThreadID returns the selected thread key, or "" when the next
// submission should start a fresh thread.
func (e *Engine) ActiveThreadID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeThread
}

// LoadAgents fetches the agent list from the directory. When nothing is
// selected yet, the first agent becomes active and its conversations are
// loaded.
func (e *Engine) LoadAgents(ctx context.Context) ([]conversation.Agent, error) {
	agents, err := e.agents.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.agentList = agents
	selectFirst := e.activeAgentID == 0 && len(agents) > 0
	var first int64
	if selectFirst {
		first = agents[0].ID
	}
	e.mu.Unlock()

	e.logger.Debug("agents loaded", "count", len(agents))

	if selectFirst {
		if err := e.SelectAgent(ctx, first); err != nil {
			return agents, err
		}
	}
	return agents, nil
}

// SelectAgent makes the given agent active, clears the active thread, and
// refreshes the agent's conversation list from the directory.
func (e *Engine) SelectAgent(ctx context.Context, agentID int64) error {
	e.mu.Lock()
	found := false
	for _, a := range e.agentList {
		if a.ID == agentID {
			found = true
			break
		}
	}
	if !found {
		e.mu.Unlock()
		return ErrAgentNotFound
	}
	e.activeAgentID = agentID
	e.activeThread = ""
	e.mu.Unlock()

	return e.refreshConversations(ctx, agentID)
}

// CreateAgent registers a new persona and adds it to the session. The new
// agent becomes active when nothing was selected.
func (e *Engine) CreateAgent(ctx context.Context, name, systemPrompt string) (conversation.Agent, error) {
	agent, err := e.agents.CreateAgent(ctx, name, systemPrompt)
	if err != nil {
		return conversation.Agent{}, err
	}

	e.mu.Lock()
	e.agentList = append(e.agentList, agent)
	if e.activeAgentID == 0 {
		e.activeAgentID = agent.ID
		e.activeThread = ""
	}
	e.mu.Unlock()

	e.logger.Info("agent created", "agent_id", agent.ID, "name", agent.Name)
	return agent, nil
}

// UpdateAgent changes a persona's name and/or system prompt. Nil fields are
// left unchanged.
func (e *Engine) UpdateAgent(ctx context.Context, agentID int64, name, systemPrompt *string) (conversation.Agent, error) {
	agent, err := e.agents.UpdateAgent(ctx, agentID, name, systemPrompt)
	if err != nil {
		return conversation.Agent{}, err
	}

	e.mu.Lock()
	for i := range e.agentList {
		if e.agentList[i].ID == agentID {
			e.agentList[i] = agent
			break
		}
	}
	e.mu.Unlock()

	return agent, nil
}

// SelectConversation makes threadID the active thread and loads its stored
// messages into the cache if they are not already present. Provisional
// local threads exist only in the cache and are never fetched.
func (e *Engine) SelectConversation(ctx context.Context, threadID string) error {
	e.mu.Lock()
	agentID := e.activeAgentID
	e.mu.Unlock()
	if agentID == 0 {
		return ErrAgentNotFound
	}

	if _, cached := e.store.Messages(threadID); !cached && !conversation.IsLocalKey(threadID) {
		msgs, err := e.convos.ListMessages(ctx, threadID)
		if err != nil {
			return err
		}
		e.store.SetMessages(threadID, agentID, msgs)
	}

	e.mu.Lock()
	e.activeThread = threadID
	e.mu.Unlock()
	return nil
}

// NewThread clears the active thread so the next submission starts a fresh
// conversation.
func (e *Engine) NewThread() {
	e.mu.Lock()
	e.activeThread = ""
	e.mu.Unlock()
}

// RefreshConversations reloads the active agent's thread metadata from the
// conversation directory.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	e.mu.Lock()
	agentID := e.activeAgentID
	e.mu.Unlock()
	if agentID == 0 {
		return ErrAgentNotFound
	}
	return e.refreshConversations(ctx, agentID)
}

func (e *Engine) refreshConversations(ctx context.Context, agentID int64) error {
	convs, err := e.convos.ListConversations(ctx, agentID)
	if err != nil {
		return err
	}
	e.store.SetConversations(agentID, convs)
	e.logger.Debug("conversations refreshed", "agent_id", agentID, "count", len(convs))
	return nil
}
