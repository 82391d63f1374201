// ABOUTME: Conversation directory calls: list threads, load history, create, delete
// ABOUTME: Translates the directory's string timestamps into time.Time values

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// wireConversation is the directory's thread metadata shape. Timestamps
// arrive as strings in more than one format; parsing is lenient.
type wireConversation struct {
	ID        int64  `json:"id"`
	AgentID   int64  `json:"agent_id"`
	ThreadID  string `json:"thread_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (w wireConversation) toDomain() conversation.Conversation {
	return conversation.Conversation{
		ID:        w.ID,
		AgentID:   w.AgentID,
		ThreadID:  w.ThreadID,
		CreatedAt: parseTimestamp(w.CreatedAt),
		UpdatedAt: parseTimestamp(w.UpdatedAt),
	}
}

// wireMessage is the directory's stored message shape.
type wireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ListConversations returns thread metadata for one agent, newest first as
// reported by the directory.
func (c *Client) ListConversations(ctx context.Context, agentID int64) ([]conversation.Conversation, error) {
	var out struct {
		Conversations []wireConversation `json:"conversations"`
	}
	path := fmt.Sprintf("/agents/%d/conversations", agentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	convs := make([]conversation.Conversation, len(out.Conversations))
	for i, w := range out.Conversations {
		convs[i] = w.toDomain()
	}
	return convs, nil
}

// CreateConversation registers a thread with the directory. threadID may be
// empty, in which case the directory assigns one.
func (c *Client) CreateConversation(ctx context.Context, agentID int64, threadID string) (conversation.Conversation, error) {
	body := struct {
		AgentID  int64  `json:"agent_id"`
		ThreadID string `json:"thread_id,omitempty"`
	}{AgentID: agentID, ThreadID: threadID}

	var out struct {
		Conversation wireConversation `json:"conversation"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return conversation.Conversation{}, err
	}
	return out.Conversation.toDomain(), nil
}

// ListMessages returns the ordered message history for a thread.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]conversation.Message, error) {
	var out struct {
		Messages []wireMessage `json:"messages"`
	}
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]conversation.Message, len(out.Messages))
	for i, w := range out.Messages {
		msgs[i] = conversation.Message{
			Role:      conversation.Role(w.Role),
			Content:   w.Content,
			CreatedAt: parseTimestamp(w.CreatedAt),
		}
	}
	return msgs, nil
}

// DeleteConversation removes a thread and its stored messages.
func (c *Client) DeleteConversation(ctx context.Context, threadID string) error {
	path := fmt.Sprintf("/conversations/%s", url.PathEscape(threadID))
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
