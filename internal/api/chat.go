// ABOUTME: Chat completion call returning an incremental event stream
// ABOUTME: Captures the X-Thread-ID header assigned to newly created threads

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dpkirschner/find-me-a-job/internal/sse"
)

// threadIDHeader carries the server-assigned thread id for a chat request
// that omitted thread_id.
const threadIDHeader = "X-Thread-ID"

// ChatRequest is the body for POST /chat. ThreadID is omitted for the
// first message of a new conversation; the server then assigns one and
// reports it in the response header.
type ChatRequest struct {
	Message  string `json:"message"`
	AgentID  int64  `json:"agent_id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatStream is an open completion response. Recv yields decoded payloads
// until io.EOF (normal termination) or a read error. The caller owns the
// stream and must Close it.
type ChatStream struct {
	// ThreadID is the server-assigned thread id, set when the request
	// omitted thread_id and a new thread was created.
	ThreadID string

	body io.ReadCloser
	dec  *sse.Decoder
}

// NewChatStream wraps an already-open event stream body. Used by tests and
// alternate transports; StreamChat is the normal entry point.
func NewChatStream(threadID string, body io.ReadCloser) *ChatStream {
	return &ChatStream{ThreadID: threadID, body: body, dec: sse.NewDecoder(body)}
}

// Recv returns the next payload fragment from the stream.
func (s *ChatStream) Recv() (string, error) {
	return s.dec.Next()
}

// Close releases the underlying response body. Safe to call after Recv has
// returned a terminal result.
func (s *ChatStream) Close() error {
	return s.body.Close()
}

// StreamChat submits a message to the chat completion service and returns
// the open event stream. A non-2xx response is returned as *HTTPError with
// the body's detail field parsed out.
func (c *Client) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	data, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST /chat: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := decodeError(resp)
		resp.Body.Close()
		c.logger.Debug("chat request rejected", "status", resp.StatusCode, "detail", herr.Detail)
		return nil, herr
	}

	c.logger.Debug("chat stream open",
		"agent_id", chatReq.AgentID,
		"thread_id", resp.Header.Get(threadIDHeader))

	return &ChatStream{
		ThreadID: resp.Header.Get(threadIDHeader),
		body:     resp.Body,
		dec:      sse.NewDecoder(resp.Body),
	}, nil
}
