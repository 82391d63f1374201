// ABOUTME: CLI for chatting with job-search agents through the findjob backend
// ABOUTME: Manages agents and conversation threads, streams replies, exports transcripts

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/dpkirschner/find-me-a-job/internal/api"
	"github.com/dpkirschner/find-me-a-job/internal/config"
	"github.com/dpkirschner/find-me-a-job/internal/conversation"
	"github.com/dpkirschner/find-me-a-job/internal/engine"
	"github.com/dpkirschner/find-me-a-job/internal/transcript"
)

const banner = `
  __ _           _       _       _
 / _(_)_ __   __| |     (_) ___ | |__
| |_| | '_ \ / _' |_____| |/ _ \| '_ \
|  _| | | | | (_| |_____| | (_) | |_) |
|_| |_|_| |_|\__,_|    _/ |\___/|_.__/
                      |__/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogger(cfg.Logging)
	client := newClient(cfg, logger)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "agents":
		err = cmdAgents(client, args)
	case "threads":
		err = cmdThreads(client, args)
	case "chat":
		err = cmdChat(client, logger, args)
	case "export":
		err = cmdExport(client, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: findjob <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  agents                     List all agents")
	fmt.Println("  agents list                List all agents")
	fmt.Println("  agents create              Create a new agent")
	fmt.Println("  agents update <id>         Update an agent's name or prompt")
	fmt.Println("  agents delete <id>         Delete an agent and its conversations")
	fmt.Println("  threads <agent-id>         List an agent's conversation threads")
	fmt.Println("  threads delete <id>        Delete a thread by ID")
	fmt.Println("  chat <agent-id> [msg]      Chat with an agent (REPL if no message)")
	fmt.Println("  export <thread-id>         Export a transcript as Markdown or HTML")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  FINDJOB_CONFIG             Path to a YAML config file")
	fmt.Println("  FINDJOB_API_URL            Backend base URL (default: http://localhost:8000)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  findjob agents create --name 'Researcher' --prompt 'Find remote Go roles'")
	fmt.Println("  findjob chat 1 \"What did you find today?\"")
	fmt.Println("  findjob export abc123 --format html --out transcript.html")
	fmt.Println()
}

// loadConfig reads FINDJOB_CONFIG if set, otherwise uses defaults.
// FINDJOB_API_URL overrides the configured base URL either way.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := os.Getenv("FINDJOB_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if url := os.Getenv("FINDJOB_API_URL"); url != "" {
		cfg.API.BaseURL = url
	}
	return cfg, cfg.Validate()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Logs go to stderr so streamed replies on stdout stay clean.
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newClient(cfg *config.Config, logger *slog.Logger) *api.Client {
	var httpClient *http.Client
	if cfg.API.Timeout > 0 {
		httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	return api.New(cfg.API.BaseURL, httpClient, logger)
}

// cmdAgents handles agent subcommands
func cmdAgents(client *api.Client, args []string) error {
	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdAgentsList(client)
	case "create", "add":
		return cmdAgentsCreate(client, args)
	case "update", "edit":
		return cmdAgentsUpdate(client, args)
	case "delete", "rm", "remove":
		return cmdAgentsDelete(client, args)
	default:
		return fmt.Errorf("unknown agents subcommand: %s (use list, create, update, delete)", subcmd)
	}
}

func cmdAgentsList(client *api.Client) error {
	agents, err := client.ListAgents(context.Background())
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(agents) == 0 {
		fmt.Println("  (no agents)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tSYSTEM PROMPT")
	fmt.Fprintln(w, "  --\t----\t-------------")
	for _, a := range agents {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", a.ID, truncate(a.Name, 24), truncate(a.SystemPrompt, 48))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdAgentsCreate(client *api.Client, args []string) error {
	var name, prompt string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--prompt", "-p":
			if i+1 < len(args) {
				prompt = args[i+1]
				i++
			}
		}
	}

	if name == "" {
		return fmt.Errorf("usage: agents create --name <name> [--prompt <system prompt>]")
	}

	agent, err := client.CreateAgent(context.Background(), name, prompt)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created agent: %d\n", agent.ID)
	fmt.Printf("  Name:    %s\n", agent.Name)
	if agent.SystemPrompt != "" {
		fmt.Printf("  Prompt:  %s\n", truncate(agent.SystemPrompt, 64))
	}

	return nil
}

func cmdAgentsUpdate(client *api.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agents update <agent-id> [--name <name>] [--prompt <system prompt>]")
	}

	agentID, err := parseAgentID(args[0])
	if err != nil {
		return err
	}
	args = args[1:]

	var name, prompt *string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = &args[i+1]
				i++
			}
		case "--prompt", "-p":
			if i+1 < len(args) {
				prompt = &args[i+1]
				i++
			}
		}
	}

	if name == nil && prompt == nil {
		return fmt.Errorf("nothing to update: pass --name and/or --prompt")
	}

	agent, err := client.UpdateAgent(context.Background(), agentID, name, prompt)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Updated agent: %d\n", agent.ID)
	fmt.Printf("  Name:    %s\n", agent.Name)
	if agent.SystemPrompt != "" {
		fmt.Printf("  Prompt:  %s\n", truncate(agent.SystemPrompt, 64))
	}

	return nil
}

func cmdAgentsDelete(client *api.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agents delete <agent-id>")
	}

	agentID, err := parseAgentID(args[0])
	if err != nil {
		return err
	}

	if err := client.DeleteAgent(context.Background(), agentID); err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted agent: %d\n", agentID)

	return nil
}

// cmdThreads handles conversation thread subcommands
func cmdThreads(client *api.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: threads <agent-id> | threads delete <thread-id>")
	}

	if args[0] == "delete" || args[0] == "rm" || args[0] == "remove" {
		if len(args) < 2 {
			return fmt.Errorf("usage: threads delete <thread-id>")
		}
		if err := client.DeleteConversation(context.Background(), args[1]); err != nil {
			return fmt.Errorf("deleting thread: %w", err)
		}
		green := color.New(color.FgGreen)
		green.Printf("✓ Deleted thread: %s\n", args[1])
		return nil
	}

	agentID, err := parseAgentID(args[0])
	if err != nil {
		return err
	}

	convs, err := client.ListConversations(context.Background(), agentID)
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Conversation Threads")
	cyan.Println("  --------------------")

	if len(convs) == 0 {
		fmt.Println("  (no threads)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  THREAD\tCREATED\tUPDATED")
	fmt.Fprintln(w, "  ------\t-------\t-------")
	for _, c := range convs {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", c.ThreadID, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdChat provides one-shot or interactive chat with an agent
func cmdChat(client *api.Client, logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chat <agent-id> [message]")
	}

	agentID, err := parseAgentID(args[0])
	if err != nil {
		return err
	}

	eng := engine.New(client, client, client, conversation.NewStore(logger), logger)
	ctx := context.Background()
	if _, err := eng.LoadAgents(ctx); err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	if err := eng.SelectAgent(ctx, agentID); err != nil {
		return err
	}

	if len(args) >= 2 {
		// One-shot mode: send message and stream response
		message := strings.Join(args[1:], " ")
		return runExchange(ctx, eng, agentID, message)
	}

	return chatREPL(ctx, eng, agentID)
}

// chatREPL runs an interactive read-eval-print loop
func chatREPL(ctx context.Context, eng *engine.Engine, agentID int64) error {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	agent, _ := eng.ActiveAgent()
	cyan.Printf("Chat with %s (Ctrl+D to exit)\n", agent.Name)
	fmt.Println("Commands: /new  /threads  /switch <thread-id>  (Ctrl+C stops a reply)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1024*1024) // 1MB max input
	for {
		green.Print("> ")
		if !scanner.Scan() {
			// EOF (Ctrl+D) or error
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if err := replCommand(ctx, eng, line); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}

		if err := runExchange(ctx, eng, agentID, line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
	}
}

// replCommand dispatches slash commands inside the REPL
func replCommand(ctx context.Context, eng *engine.Engine, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/new":
		eng.NewThread()
		fmt.Println("Started a new thread.")
		return nil
	case "/threads":
		agent, ok := eng.ActiveAgent()
		if !ok {
			return fmt.Errorf("no agent selected")
		}
		if err := eng.RefreshConversations(ctx); err != nil {
			return err
		}
		convs := eng.Store().Conversations(agent.ID)
		if len(convs) == 0 {
			fmt.Println("(no threads)")
			return nil
		}
		active := eng.ActiveThreadID()
		for _, c := range convs {
			marker := " "
			if c.ThreadID == active {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, c.ThreadID, formatTime(c.UpdatedAt))
		}
		return nil
	case "/switch":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /switch <thread-id>")
		}
		if err := eng.SelectConversation(ctx, fields[1]); err != nil {
			return err
		}
		printHistory(eng, fields[1])
		return nil
	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
}

// printHistory replays a thread's cached messages after /switch
func printHistory(eng *engine.Engine, threadID string) {
	msgs, ok := eng.Store().Messages(threadID)
	if !ok {
		return
	}
	green := color.New(color.FgGreen)
	for _, m := range msgs {
		if m.Role == conversation.RoleUser {
			green.Print("> ")
			fmt.Println(m.Content)
		} else {
			fmt.Println(m.Content)
		}
		fmt.Println()
	}
}

// runExchange submits one message and prints the streamed reply. Ctrl+C
// during the exchange stops it; the partial reply stays in the thread.
func runExchange(ctx context.Context, eng *engine.Engine, agentID int64, message string) error {
	subCtx, unsubscribe := context.WithCancel(ctx)
	defer unsubscribe()
	updates, _ := eng.Subscribe(subCtx, agentID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			eng.StopAgent(agentID)
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	submitted := make(chan bool, 1)
	go func() { submitted <- eng.Submit(ctx, message) }()

	for {
		select {
		case u := <-updates:
			switch u.Kind {
			case engine.UpdateDelta:
				fmt.Print(u.Delta)
			case engine.UpdateCompleted:
				fmt.Println()
				return nil
			case engine.UpdateAborted:
				fmt.Println()
				color.New(color.Faint).Println("(stopped)")
				return nil
			case engine.UpdateFailed:
				fmt.Println()
				return u.Err
			}
		case ok := <-submitted:
			if !ok {
				// Guarded out before any exchange ran, so no terminal
				// update will arrive.
				return fmt.Errorf("message not sent")
			}
			// The terminal update is already buffered; keep draining.
			submitted = nil
		}
	}
}

// cmdExport writes a thread transcript as Markdown or HTML
func cmdExport(client *api.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: export <thread-id> [--format md|html] [--out <file>]")
	}

	threadID := args[0]
	args = args[1:]

	format := "md"
	outPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format", "-f":
			if i+1 < len(args) {
				format = args[i+1]
				i++
			}
		case "--out", "-o":
			if i+1 < len(args) {
				outPath = args[i+1]
				i++
			}
		}
	}

	ctx := context.Background()
	agent, err := findThreadOwner(ctx, client, threadID)
	if err != nil {
		return err
	}

	msgs, err := client.ListMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	var out string
	switch format {
	case "md", "markdown":
		out = transcript.Markdown(agent, threadID, msgs)
	case "html":
		out, err = transcript.HTML(agent, threadID, msgs)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s (use md or html)", format)
	}

	if outPath == "" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Exported %s to %s\n", threadID, outPath)
	return nil
}

// findThreadOwner locates the agent a thread belongs to by scanning each
// agent's conversation list. The backend has no thread lookup endpoint.
func findThreadOwner(ctx context.Context, client *api.Client, threadID string) (conversation.Agent, error) {
	agents, err := client.ListAgents(ctx)
	if err != nil {
		return conversation.Agent{}, fmt.Errorf("listing agents: %w", err)
	}

	for _, a := range agents {
		convs, err := client.ListConversations(ctx, a.ID)
		if err != nil {
			return conversation.Agent{}, fmt.Errorf("listing threads for agent %d: %w", a.ID, err)
		}
		for _, c := range convs {
			if c.ThreadID == threadID {
				return a, nil
			}
		}
	}
	return conversation.Agent{}, fmt.Errorf("thread %s not found", threadID)
}

func parseAgentID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid agent id %q", s)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 02 15:04")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
