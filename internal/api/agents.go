// ABOUTME: Agent directory calls: list, create, update, delete personas
// ABOUTME: Maps the directory's JSON envelopes onto conversation.Agent

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// ListAgents returns all registered agent personas.
func (c *Client) ListAgents(ctx context.Context) ([]conversation.Agent, error) {
	var out struct {
		Agents []conversation.Agent `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// CreateAgent registers a new persona. systemPrompt may be empty.
func (c *Client) CreateAgent(ctx context.Context, name, systemPrompt string) (conversation.Agent, error) {
	body := struct {
		Name         string `json:"name"`
		SystemPrompt string `json:"system_prompt,omitempty"`
	}{Name: name, SystemPrompt: systemPrompt}

	var out struct {
		Agent conversation.Agent `json:"agent"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/agents", body, &out); err != nil {
		return conversation.Agent{}, err
	}
	return out.Agent, nil
}

// UpdateAgent changes a persona's name and/or system prompt. Nil fields are
// left untouched by the directory.
func (c *Client) UpdateAgent(ctx context.Context, id int64, name, systemPrompt *string) (conversation.Agent, error) {
	body := struct {
		Name         *string `json:"name,omitempty"`
		SystemPrompt *string `json:"system_prompt,omitempty"`
	}{Name: name, SystemPrompt: systemPrompt}

	var out conversation.Agent
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/agents/%d", id), body, &out); err != nil {
		return conversation.Agent{}, err
	}
	return out, nil
}

// DeleteAgent removes a persona from the directory.
func (c *Client) DeleteAgent(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/agents/%d", id), nil, nil)
}
