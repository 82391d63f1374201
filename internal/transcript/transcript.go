// ABOUTME: Renders conversation transcripts as Markdown and standalone HTML
// ABOUTME: Message content is treated as Markdown and converted with goldmark

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/dpkirschner/find-me-a-job/internal/conversation"
)

// roleLabel maps message roles to the heading shown in exports.
func roleLabel(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "User"
	case conversation.RoleAssistant:
		return "Assistant"
	case conversation.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Markdown renders a transcript as a Markdown document. Message content is
// emitted verbatim; assistant output is already Markdown.
func Markdown(agent conversation.Agent, threadID string, msgs []conversation.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Conversation with %s\n\n", agent.Name)
	fmt.Fprintf(&b, "Thread: %s\n\n", threadID)

	for _, m := range msgs {
		fmt.Fprintf(&b, "## %s", roleLabel(m.Role))
		if !m.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", m.CreatedAt.Format(time.RFC3339))
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(m.Content, "\n"))
		b.WriteString("\n\n")
	}

	return b.String()
}

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Conversation with {{.AgentName}}</title>
</head>
<body>
<h1>Conversation with {{.AgentName}}</h1>
<p>Thread: {{.ThreadID}}</p>
{{range .Messages}}<section class="message {{.Role}}">
<h2>{{.Label}}{{if .Timestamp}} <time>{{.Timestamp}}</time>{{end}}</h2>
{{.Body}}
</section>
{{end}}</body>
</html>
`))

type pageMessage struct {
	Role      string
	Label     string
	Timestamp string
	Body      template.HTML
}

type pageData struct {
	AgentName string
	ThreadID  string
	Messages  []pageMessage
}

// HTML renders a transcript as a standalone HTML page. Each message body is
// converted from Markdown.
func HTML(agent conversation.Agent, threadID string, msgs []conversation.Message) (string, error) {
	data := pageData{
		AgentName: agent.Name,
		ThreadID:  threadID,
	}

	for _, m := range msgs {
		var body bytes.Buffer
		if err := goldmark.Convert([]byte(m.Content), &body); err != nil {
			return "", fmt.Errorf("converting message markdown: %w", err)
		}

		pm := pageMessage{
			Role:  string(m.Role),
			Label: roleLabel(m.Role),
			Body:  template.HTML(body.String()),
		}
		if !m.CreatedAt.IsZero() {
			pm.Timestamp = m.CreatedAt.Format(time.RFC3339)
		}
		data.Messages = append(data.Messages, pm)
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering transcript page: %w", err)
	}
	return out.String(), nil
}
