package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/troupelabs/troupe/internal/engine"
	"github.com/troupelabs/troupe/internal/queue"
	"github.com/troupelabs/troupe/pkg/models"
)

// maxTranscriptLines caps the transcript so long sessions stay bounded.
const maxTranscriptLines = 500

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	eventStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// EngineEventMsg forwards an engine event into the transcript.
type EngineEventMsg struct {
	Event engine.Event
}

// HistoryMsg preloads prior conversation turns, letting a restarted chat
// pick up where it left off.
type HistoryMsg struct {
	Messages []models.Message
}

// ReplyMsg delivers the session's reply to a submitted message.
type ReplyMsg struct {
	Text string
	Err  error
}

// SessionDoneMsg reports that the session loop exited.
type SessionDoneMsg struct {
	Err error
}

// ChatConfig bundles the dependencies for a ChatApp.
type ChatConfig struct {
	// Queue receives submitted messages. The session consumer on the other
	// end resolves each message's future with the reply.
	Queue *queue.Queue
	// Title is shown in the header, typically the session goal.
	Title string
}

// ChatApp is the main model for chat mode. It renders a scrolling transcript
// of user messages, replies, and engine events over an input field.
type ChatApp struct {
	queue      *queue.Queue
	transcript viewport.Model
	inputField *InputField
	lines      []string
	title      string
	width      int
	height     int

	// ready flips once the first WindowSizeMsg arrives and the viewport
	// exists.
	ready bool

	// pending counts submitted messages whose replies are still in flight.
	pending int

	done     bool
	quitting bool

	tokens int64
	cost   float64
}

// NewChatApp creates a new ChatApp.
func NewChatApp(cfg ChatConfig) *ChatApp {
	return &ChatApp{
		queue:      cfg.Queue,
		inputField: NewInputField(),
		title:      cfg.Title,
	}
}

// Init implements tea.Model.
func (a *ChatApp) Init() tea.Cmd {
	return a.inputField.Focus()
}

// Update implements tea.Model.
func (a *ChatApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.quitting = true
			return a, tea.Quit

		case "pgup", "pgdown", "home", "end":
			// Scrolling keys go to the transcript; everything else types.
			var cmd tea.Cmd
			a.transcript, cmd = a.transcript.Update(msg)
			return a, cmd

		default:
			var cmd tea.Cmd
			a.inputField, cmd = a.inputField.Update(msg)
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case MessageSubmittedMsg:
		return a, a.submit(msg.Text)

	case HistoryMsg:
		for _, m := range msg.Messages {
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			if m.Role == models.RoleUser {
				a.appendLine(userStyle.Render("you: ") + m.Content)
			} else {
				a.appendLine(replyStyle.Render("troupe: ") + m.Content)
			}
		}
		return a, nil

	case EngineEventMsg:
		a.appendLine(formatEvent(msg.Event))
		if msg.Event.Type == engine.EventRunCompleted {
			a.tokens = msg.Event.TokensUsed
			a.cost = msg.Event.Cost
		}
		return a, nil

	case ReplyMsg:
		if a.pending > 0 {
			a.pending--
		}
		if msg.Err != nil {
			a.appendLine(errorStyle.Render(fmt.Sprintf("error: %v", msg.Err)))
		} else if strings.TrimSpace(msg.Text) != "" {
			a.appendLine(replyStyle.Render("troupe: ") + msg.Text)
		}
		return a, nil

	case SessionDoneMsg:
		a.done = true
		if msg.Err != nil {
			a.appendLine(errorStyle.Render(fmt.Sprintf("session ended: %v", msg.Err)))
		} else {
			a.appendLine(eventStyle.Render("session ended"))
		}
		return a, nil
	}

	return a, nil
}

// submit records the user's message and enqueues it, returning a command
// that resolves when the session replies. Submitting during a run is the
// interruption path: the engine pauses at the next task boundary to handle
// the message.
func (a *ChatApp) submit(text string) tea.Cmd {
	a.appendLine(userStyle.Render("you: ") + text)
	fut, err := a.queue.Enqueue(text)
	if err != nil {
		a.appendLine(errorStyle.Render(fmt.Sprintf("error: %v", err)))
		return nil
	}
	a.pending++
	return awaitReply(fut)
}

// awaitReply blocks on the future off the UI loop and surfaces the outcome
// as a ReplyMsg.
func awaitReply(fut *queue.Future) tea.Cmd {
	return func() tea.Msg {
		text, err := fut.Wait()
		return ReplyMsg{Text: text, Err: err}
	}
}

// appendLine adds a transcript line and keeps the viewport pinned to the
// bottom.
func (a *ChatApp) appendLine(line string) {
	a.lines = append(a.lines, line)
	if len(a.lines) > maxTranscriptLines {
		a.lines = a.lines[len(a.lines)-maxTranscriptLines:]
	}
	if a.ready {
		a.transcript.SetContent(strings.Join(a.lines, "\n"))
		a.transcript.GotoBottom()
	}
}

// updateSizes lays out the viewport and input field for the terminal size.
func (a *ChatApp) updateSizes() {
	headerHeight := 2
	inputHeight := 3
	footerHeight := 1

	vpHeight := a.height - headerHeight - inputHeight - footerHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !a.ready {
		a.transcript = viewport.New(a.width, vpHeight)
		a.ready = true
	} else {
		a.transcript.Width = a.width
		a.transcript.Height = vpHeight
	}
	a.transcript.SetContent(strings.Join(a.lines, "\n"))
	a.transcript.GotoBottom()

	a.inputField.SetWidth(a.width)
}

// View implements tea.Model.
func (a *ChatApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}
	if !a.ready {
		return "Starting chat..."
	}

	header := titleStyle.Render("troupe chat")
	if a.title != "" {
		header += " " + eventStyle.Render(a.title)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		a.transcript.View(),
		a.inputField.View(),
		a.statusLine(),
	)
}

// statusLine renders the footer: activity state, key hints, and token
// totals once a run has completed.
func (a *ChatApp) statusLine() string {
	parts := []string{}
	if a.pending > 0 {
		parts = append(parts, "working...")
	}
	if a.done {
		parts = append(parts, "session ended")
	}
	parts = append(parts, "enter: send", "ctrl+c: quit")

	s := strings.Join(parts, "  ")
	if a.tokens > 0 {
		s += fmt.Sprintf("  tokens: %d ($%.4f)", a.tokens, a.cost)
	}
	return helpStyle.Render(s)
}

// formatEvent renders one engine event as a transcript line.
func formatEvent(ev engine.Event) string {
	ts := ev.Timestamp.Format("15:04:05")

	var body string
	switch ev.Type {
	case engine.EventTaskStarted:
		body = fmt.Sprintf("▶ %s: %s", ev.Agent, ev.Message)
	case engine.EventTaskCompleted:
		body = fmt.Sprintf("✅ %s: %s", ev.Agent, ev.Message)
	case engine.EventTaskFailed:
		body = fmt.Sprintf("⚠️ %s: %s", ev.Agent, ev.Message)
		if ev.Err != nil {
			body += fmt.Sprintf(" (%v)", ev.Err)
		}
	case engine.EventToolCalled:
		body = fmt.Sprintf("🔧 %s used %s", ev.Agent, ev.Message)
	case engine.EventHandoffCreated:
		body = "🤝 " + ev.Message
	case engine.EventPlanAdjusted:
		body = "✏️ " + ev.Message
	case engine.EventRunPaused:
		body = "⏸ " + ev.Message
	case engine.EventRunCompleted:
		body = "🏁 " + ev.Message
	default:
		body = ev.Message
	}

	return eventStyle.Render(fmt.Sprintf("[%s] %s", ts, body))
}

// NewChatProgram creates a new Bubbletea program for chat mode.
func NewChatProgram(cfg ChatConfig) (*tea.Program, *ChatApp) {
	app := NewChatApp(cfg)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
