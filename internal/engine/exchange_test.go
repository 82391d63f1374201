// ABOUTME: Tests for the exchange state machine
// ABOUTME: Covers guards, streaming, promotion, abort semantics, and error finalization

package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpkirschner/find-me-a-job/internal/api"
	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// waitForCancel is a scriptedBody step that blocks until the request
// context is cancelled, simulating a stream that is mid-transfer when the
// user hits stop.
const waitForCancel = "\x00wait-for-cancel"

// scriptedBody plays back chunks as successive reads. Steps after a
// waitForCancel represent data that had already arrived when the
// cancellation signal fired. Once the script is exhausted the body reports
// the cancellation cause, or io.EOF if the context is still live.
type scriptedBody struct {
	ctx    context.Context
	steps  []string
	onWait chan struct{} // closed when the wait step is reached
	i      int
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	for {
		if b.i >= len(b.steps) {
			if b.ctx.Err() != nil {
				return 0, context.Cause(b.ctx)
			}
			return 0, io.EOF
		}
		step := b.steps[b.i]
		b.i++
		if step == waitForCancel {
			if b.onWait != nil {
				close(b.onWait)
				b.onWait = nil
			}
			<-b.ctx.Done()
			continue
		}
		return copy(p, step), nil
	}
}

func (b *scriptedBody) Close() error { return nil }

// collectUntilTerminal reads updates until the exchange's terminal one.
func collectUntilTerminal(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var updates []Update
	for {
		select {
		case u := <-ch:
			updates = append(updates, u)
			if u.Terminal() {
				return updates
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for terminal update")
		}
	}
}

func TestSubmit_PromotionScenario(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return streamOf("abc123", "Hel", "lo"), nil
	}}
	eng, _, convoDir := newTestEngine(t, chat, 1)
	convoDir.mu.Lock()
	convoDir.conversations[1] = []conversation.Conversation{{AgentID: 1, ThreadID: "abc123"}}
	convoDir.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	require.True(t, eng.Submit(context.Background(), "Hi"))

	got := collectUntilTerminal(t, updates)
	require.Len(t, got, 3)
	assert.Equal(t, UpdateDelta, got[0].Kind)
	assert.Equal(t, "Hel", got[0].Delta)
	assert.Equal(t, UpdateDelta, got[1].Kind)
	assert.Equal(t, "lo", got[1].Delta)
	assert.Equal(t, UpdateCompleted, got[2].Kind)
	assert.Equal(t, "abc123", got[2].ThreadKey)

	// The provisional key is gone; the real key holds the full exchange.
	tempKey := got[0].ThreadKey
	assert.True(t, conversation.IsLocalKey(tempKey))
	_, ok := eng.Store().Messages(tempKey)
	assert.False(t, ok, "temporary key must not survive promotion")

	msgs, ok := eng.Store().Messages("abc123")
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)

	assert.Equal(t, "abc123", eng.ActiveThreadID())
	assert.False(t, eng.controller.Active(1), "no live exchange after terminal phase")

	// The directory refresh after promotion landed in the cache.
	convs := eng.Store().Conversations(1)
	require.Len(t, convs, 1)
	assert.Equal(t, "abc123", convs[0].ThreadID)
}

func TestSubmit_ExistingThreadSkipsPromotion(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		assert.Equal(t, "t-1", req.ThreadID)
		return streamOf("t-1", "ok"), nil
	}}
	eng, _, convoDir := newTestEngine(t, chat, 1)
	convoDir.mu.Lock()
	convoDir.messages["t-1"] = nil
	convoDir.mu.Unlock()
	require.NoError(t, eng.SelectConversation(context.Background(), "t-1"))

	require.True(t, eng.Submit(context.Background(), "again"))

	msgs, ok := eng.Store().Messages("t-1")
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok", msgs[1].Content)
	assert.Equal(t, "t-1", eng.ActiveThreadID())
}

func TestSubmit_GuardsAreSilentNoOps(t *testing.T) {
	chat := &fakeChat{}
	eng, _, _ := newTestEngine(t, chat, 1)

	assert.False(t, eng.Submit(context.Background(), ""))
	assert.False(t, eng.Submit(context.Background(), "   \n\t "))
	assert.Zero(t, chat.callCount(), "no request may be issued for blank input")
}

func TestSubmit_NoActiveAgentIsNoOp(t *testing.T) {
	chat := &fakeChat{}
	eng, _, _ := newTestEngine(t, chat, 0)

	assert.False(t, eng.Submit(context.Background(), "hello"))
	assert.Zero(t, chat.callCount())
}

func TestSubmit_SecondSubmissionDroppedWhileActive(t *testing.T) {
	started := make(chan struct{})
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return api.NewChatStream("", &scriptedBody{
			ctx:    ctx,
			steps:  []string{"data: a\n\n", waitForCancel},
			onWait: started,
		}), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	done := make(chan bool, 1)
	go func() { done <- eng.Submit(context.Background(), "first") }()
	<-started

	// A second submission for the same agent is dropped, not queued.
	assert.False(t, eng.Submit(context.Background(), "second"))
	assert.Equal(t, 1, chat.callCount())

	require.True(t, eng.Stop())
	assert.True(t, <-done)
}

func TestSubmit_HTTPErrorReplacesAssistant(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return nil, &api.HTTPError{StatusCode: http.StatusInternalServerError, Detail: "Server error occurred"}
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	require.True(t, eng.Submit(context.Background(), "Hi"))

	got := collectUntilTerminal(t, updates)
	require.Len(t, got, 1)
	assert.Equal(t, UpdateFailed, got[0].Kind)

	msgs, ok := eng.Store().Messages(got[0].ThreadKey)
	require.True(t, ok)
	assert.Equal(t, "Server error occurred", msgs[1].Content)
}

func TestSubmit_HTTPErrorWithoutDetailFallsBack(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return nil, &api.HTTPError{StatusCode: http.StatusServiceUnavailable}
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	require.True(t, eng.Submit(context.Background(), "Hi"))

	got := collectUntilTerminal(t, updates)
	msgs, _ := eng.Store().Messages(got[0].ThreadKey)
	assert.Equal(t, "HTTP 503", msgs[1].Content)
}

func TestSubmit_NetworkErrorReplacesAssistant(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	require.True(t, eng.Submit(context.Background(), "Hi"))

	got := collectUntilTerminal(t, updates)
	msgs, _ := eng.Store().Messages(got[0].ThreadKey)
	assert.Equal(t, "dial tcp: connection refused", msgs[1].Content)
}

func TestSubmit_StreamReadErrorReplacesAssistant(t *testing.T) {
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return api.NewChatStream("", io.NopCloser(&failingReader{
			data: "data: tok\n\n",
			err:  errors.New("unexpected EOF"),
		})), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	require.True(t, eng.Submit(context.Background(), "Hi"))

	got := collectUntilTerminal(t, updates)
	require.Equal(t, UpdateDelta, got[0].Kind)
	terminal := got[len(got)-1]
	assert.Equal(t, UpdateFailed, terminal.Kind)

	msgs, _ := eng.Store().Messages(terminal.ThreadKey)
	assert.Equal(t, "unexpected EOF", msgs[1].Content)
}

// failingReader yields its data once, then the configured error.
type failingReader struct {
	data string
	err  error
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func TestSubmit_AbortAppendsStopMarkerOnce(t *testing.T) {
	started := make(chan struct{})
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return api.NewChatStream("", &scriptedBody{
			ctx:    ctx,
			steps:  []string{"data: Hel\n\n", waitForCancel},
			onWait: started,
		}), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	done := make(chan bool, 1)
	go func() { done <- eng.Submit(context.Background(), "Hi") }()
	<-started

	require.True(t, eng.Stop())
	require.True(t, <-done)

	got := collectUntilTerminal(t, updates)
	terminal := got[len(got)-1]
	assert.Equal(t, UpdateAborted, terminal.Kind)

	msgs, ok := eng.Store().Messages(terminal.ThreadKey)
	require.True(t, ok)
	assert.Equal(t, "Hel"+stopMarker, msgs[1].Content)
	assert.Equal(t, 1, strings.Count(msgs[1].Content, "(Request stopped)"))
}

func TestSubmit_AbortAppliesAlreadyReceivedEvents(t *testing.T) {
	// Data that arrived before the cancellation signal is observed is
	// still applied; the stop marker lands exactly once after it.
	started := make(chan struct{})
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return api.NewChatStream("", &scriptedBody{
			ctx:    ctx,
			steps:  []string{"data: a\n\n", waitForCancel, "data: b\n\n"},
			onWait: started,
		}), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	done := make(chan bool, 1)
	go func() { done <- eng.Submit(context.Background(), "Hi") }()
	<-started

	require.True(t, eng.Stop())
	require.True(t, <-done)

	got := collectUntilTerminal(t, updates)
	terminal := got[len(got)-1]
	assert.Equal(t, UpdateAborted, terminal.Kind)

	msgs, _ := eng.Store().Messages(terminal.ThreadKey)
	assert.Equal(t, "ab"+stopMarker, msgs[1].Content)
	assert.Equal(t, 1, strings.Count(msgs[1].Content, "(Request stopped)"))
}

func TestSubmit_AbortSkipsPromotion(t *testing.T) {
	// Even though the response carried a new thread id, an aborted
	// exchange is never promoted; the provisional stub stays local-only.
	started := make(chan struct{})
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return api.NewChatStream("abc123", &scriptedBody{
			ctx:    ctx,
			steps:  []string{waitForCancel},
			onWait: started,
		}), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := eng.Subscribe(ctx, 1)

	done := make(chan bool, 1)
	go func() { done <- eng.Submit(context.Background(), "Hi") }()
	<-started

	require.True(t, eng.Stop())
	require.True(t, <-done)

	got := collectUntilTerminal(t, updates)
	terminal := got[len(got)-1]
	require.Equal(t, UpdateAborted, terminal.Kind)
	assert.True(t, conversation.IsLocalKey(terminal.ThreadKey))

	assert.Empty(t, eng.ActiveThreadID())
	_, ok := eng.Store().Messages("abc123")
	assert.False(t, ok)

	// The retained stub is readable: stop marker on the empty placeholder.
	msgs, ok := eng.Store().Messages(terminal.ThreadKey)
	require.True(t, ok)
	assert.Equal(t, stopMarker, msgs[1].Content)
}

func TestSubmit_IndependentAgentsRunConcurrently(t *testing.T) {
	firstStarted := make(chan struct{})
	chat := &fakeChat{}
	chat.respond = func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		if req.AgentID == 1 {
			return api.NewChatStream("", &scriptedBody{
				ctx:    ctx,
				steps:  []string{waitForCancel},
				onWait: firstStarted,
			}), nil
		}
		return streamOf("t-2", "fast"), nil
	}
	eng, _, _ := newTestEngine(t, chat, 2)

	done := make(chan bool, 1)
	go func() { done <- eng.Submit(context.Background(), "slow one") }()
	<-firstStarted

	// Switch agents; the second agent's exchange is unaffected by the
	// first one still being in flight.
	require.NoError(t, eng.SelectAgent(context.Background(), 2))
	require.True(t, eng.Submit(context.Background(), "quick one"))
	assert.Equal(t, 2, chat.callCount())

	require.True(t, eng.StopAgent(1))
	assert.True(t, <-done)
}

func TestSubmit_ClockInjection(t *testing.T) {
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	chat := &fakeChat{respond: func(ctx context.Context, req api.ChatRequest) (*api.ChatStream, error) {
		return streamOf("t-1", "x"), nil
	}}
	eng, _, _ := newTestEngine(t, chat, 1)
	eng.SetClock(func() time.Time { return fixed })

	require.True(t, eng.Submit(context.Background(), "Hi"))

	msgs, ok := eng.Store().Messages("t-1")
	require.True(t, ok)
	assert.Equal(t, fixed, msgs[0].CreatedAt)
}
