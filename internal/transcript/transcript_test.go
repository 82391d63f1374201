// ABOUTME: Tests for transcript rendering
// ABOUTME: Covers Markdown layout, HTML conversion, and timestamp formatting

package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

var testAgent = conversation.Agent{ID: 1, Name: "Researcher"}

func TestMarkdown_Layout(t *testing.T) {
	when := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "What is Go?", CreatedAt: when},
		{Role: conversation.RoleAssistant, Content: "A **language**.\n"},
	}

	out := Markdown(testAgent, "abc123", msgs)

	assert.Contains(t, out, "# Conversation with Researcher")
	assert.Contains(t, out, "Thread: abc123")
	assert.Contains(t, out, "## User (2026-08-25T12:00:00Z)")
	assert.Contains(t, out, "What is Go?")
	assert.Contains(t, out, "## Assistant\n")
	assert.Contains(t, out, "A **language**.")
	assert.NotContains(t, out, "language**.\n\n\n", "trailing newlines are collapsed")
}

func TestMarkdown_ZeroTimestampOmitted(t *testing.T) {
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hi"},
	}

	out := Markdown(testAgent, "abc123", msgs)
	assert.Contains(t, out, "## User\n")
	assert.NotContains(t, out, "## User (")
}

func TestMarkdown_EmptyHistory(t *testing.T) {
	out := Markdown(testAgent, "abc123", nil)
	assert.Contains(t, out, "# Conversation with Researcher")
	assert.NotContains(t, out, "##")
}

func TestHTML_ConvertsMessageMarkdown(t *testing.T) {
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "plain text"},
		{Role: conversation.RoleAssistant, Content: "Use `go test` and **verify**."},
	}

	out, err := HTML(testAgent, "abc123", msgs)
	require.NoError(t, err)

	assert.Contains(t, out, "<title>Conversation with Researcher</title>")
	assert.Contains(t, out, "Thread: abc123")
	assert.Contains(t, out, `<section class="message user">`)
	assert.Contains(t, out, `<section class="message assistant">`)
	assert.Contains(t, out, "<code>go test</code>")
	assert.Contains(t, out, "<strong>verify</strong>")
}

func TestHTML_EscapesAgentName(t *testing.T) {
	agent := conversation.Agent{ID: 2, Name: "<script>alert(1)</script>"}

	out, err := HTML(agent, "abc123", nil)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestHTML_Timestamp(t *testing.T) {
	when := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hi", CreatedAt: when},
	}

	out, err := HTML(testAgent, "abc123", msgs)
	require.NoError(t, err)
	assert.Contains(t, out, "<time>2026-08-25T12:00:00Z</time>")
}
