package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hrygo/expertpanel/client"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
)

const (
	defaultServer = "http://127.0.0.1:8081"
	frameInterval = 250 * time.Millisecond
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a7f3d0"))
	expertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9a8d4"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24"))
	quoteStyle  = lipgloss.NewStyle().Faint(true)
	helpStyle   = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f87171"))
)

type eventMsg struct{ event eventlog.Event }

type tickMsg time.Time

type postDoneMsg struct{ err error }

type model struct {
	server    string
	sessionID string

	reconciler *client.Reconciler
	events     chan tea.Msg
	input      textinput.Model

	ready  bool
	status string
	width  int
}

func newModel(server, sessionID string, events chan tea.Msg) model {
	input := textinput.New()
	input.Placeholder = "Ask the panel..."
	input.CharLimit = 2000
	input.Focus()
	return model{
		server:     server,
		sessionID:  sessionID,
		reconciler: client.NewReconciler(),
		events:     events,
		input:      input,
		status:     "connecting",
	}
}

func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func tickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.events), tickEvery(frameInterval), textinput.Blink)
}

func (m model) postCmd(content string) tea.Cmd {
	server, sessionID := m.server, m.sessionID
	return func() tea.Msg {
		payload, _ := json.Marshal(map[string]string{
			"sessionId": sessionID,
			"content":   content,
		})
		resp, err := http.Post(server+"/api/v1/messages", "application/json", bytes.NewReader(payload))
		if err != nil {
			return postDoneMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return postDoneMsg{err: fmt.Errorf("server returned status %d", resp.StatusCode)}
		}
		return postDoneMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			content := strings.TrimSpace(m.input.Value())
			if content == "" || !m.ready {
				return m, nil
			}
			m.input.Reset()
			m.status = "panel is responding"
			return m, m.postCmd(content)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case eventMsg:
		switch msg.event.(type) {
		case *eventlog.ReadyEvent:
			m.ready = true
			m.status = "ready"
		case *eventlog.EndEvent:
			m.status = "ready"
		}
		m.reconciler.Apply(msg.event)
		return m, waitEvent(m.events)

	case tickMsg:
		m.reconciler.Tick()
		return m, tickEvery(frameInterval)

	case postDoneMsg:
		if msg.err != nil {
			m.status = "submit failed: " + msg.err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("expertpanel") + "  " + helpStyle.Render("session "+m.sessionID))
	b.WriteString("\n\n")

	for _, msg := range m.reconciler.Messages() {
		b.WriteString(renderMessage(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	status := m.status
	style := helpStyle
	if strings.HasPrefix(status, "submit failed") {
		style = errStyle
	}
	b.WriteString(style.Render(status + "  (enter to send, esc to quit)"))
	b.WriteString("\n")
	return b.String()
}

func renderMessage(msg store.Message) string {
	label := msg.Name
	style := expertStyle
	switch msg.Role {
	case store.RoleUser:
		label, style = "You", userStyle
	case store.RoleSystem:
		if label == "" {
			label = "System"
		}
		style = systemStyle
	case store.RoleModerator:
		if label == "" {
			label = "Moderator"
		}
	}

	var b strings.Builder
	b.WriteString(style.Render(label) + ": ")
	if msg.ReplyToName != "" && msg.ReplyToQuote != "" {
		b.WriteString(quoteStyle.Render(fmt.Sprintf("(re %s: %q) ", msg.ReplyToName, msg.ReplyToQuote)))
	}
	b.WriteString(msg.Content)
	return b.String()
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func createSession(server, preset string) (string, error) {
	payload, _ := json.Marshal(map[string]any{"panel": preset})
	resp, err := http.Post(server+"/api/v1/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create session returned status %d", resp.StatusCode)
	}
	created := createSessionResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.SessionID, nil
}

func main() {
	server := flag.String("server", defaultServer, "panel server base URL")
	sessionID := flag.String("session", "", "session id to join (created if empty)")
	preset := flag.String("preset", "", "panel preset key for a new session")
	flag.Parse()

	base := strings.TrimRight(*server, "/")
	id := strings.TrimSpace(*sessionID)
	if id == "" {
		created, err := createSession(base, *preset)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to create session:", err)
			os.Exit(1)
		}
		id = created
	}

	events := make(chan tea.Msg, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber := client.NewSubscriber(base, id, func(event eventlog.Event) {
		events <- eventMsg{event: event}
	})
	go func() {
		_ = subscriber.Run(ctx)
	}()

	p := tea.NewProgram(newModel(base, id, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui error:", err)
		os.Exit(1)
	}
}
