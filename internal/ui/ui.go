package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/tasks"
	"github.com/dustin/go-humanize"
)

const (
	defaultPollInterval = time.Second
	maxEventLines       = 6
)

// Monitor is the part of the submission engine the TUI observes and drives.
type Monitor interface {
	Status() tasks.Status
	UpdateNetworkState(connected bool)
}

// Lister returns the pending queue in order.
type Lister interface {
	Snapshot() []models.QueuedEvent
}

// Model represents the TUI application state.
type Model struct {
	engine   Monitor
	queue    Lister
	events   <-chan tasks.Event
	interval time.Duration

	status  tasks.Status
	polled  bool
	log     []tasks.Event
	pending list.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	width   int
	height  int
}

// NewModel creates a monitor over engine and queue. events may be nil; a non-positive interval uses one second.
func NewModel(engine Monitor, queue Lister, events <-chan tasks.Event, interval time.Duration) *Model {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	pending := list.New(nil, list.NewDefaultDelegate(), 80, 16)
	pending.Title = "Pending scrobbles"
	pending.SetShowHelp(false)
	pending.SetFilteringEnabled(false)
	pending.SetShowStatusBar(false)

	return &Model{
		engine:   engine,
		queue:    queue,
		events:   events,
		interval: interval,
		pending:  pending,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the spinner, the first status snapshot and the event listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.snapshot(true), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pending.SetSize(max(msg.Width-4, 20), max(msg.Height-12-maxEventLines, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgStatus:
			data := msg.data.(statusData)
			m.status = data.status
			m.polled = true
			cmd := m.pending.SetItems(pendingItems(data.pending))
			if data.scheduled {
				return m, tea.Batch(cmd, m.poll())
			}
			return m, cmd

		case MsgEngineEvent:
			m.log = append(m.log, msg.data.(tasks.Event))
			if len(m.log) > maxEventLines {
				m.log = m.log[len(m.log)-maxEventLines:]
			}
			return m, tea.Batch(m.waitForEvent(), m.snapshot(false))

		case MsgEventsClosed:
			m.events = nil
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.pending, cmd = m.pending.Update(msg)
	return m, cmd
}

// View renders the status panel, recent events and the pending queue.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("scrob"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderEvents())
	b.WriteString("\n")
	b.WriteString(m.pending.View())
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.network):
		m.engine.UpdateNetworkState(!m.status.Connected)
		return m, m.snapshot(false)
	case key.Matches(msg, m.keys.refresh):
		return m, m.snapshot(false)
	}

	var cmd tea.Cmd
	m.pending, cmd = m.pending.Update(msg)
	return m, cmd
}

func (m *Model) snapshot(scheduled bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(m.engine.Status(), m.queue.Snapshot(), scheduled)
	}
}

func (m *Model) poll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return statusMsg(m.engine.Status(), m.queue.Snapshot(), true)
	})
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg()
		}
		return engineEventMsg(ev)
	}
}

func (m *Model) renderStatus() string {
	if !m.polled {
		return m.spinner.View() + " loading status..."
	}
	s := m.status

	indicator := "•"
	if s.State == tasks.Transmitting.String() || s.State == tasks.WaitingForResponse.String() {
		indicator = m.spinner.View()
	}
	state := s.State
	if !s.Running {
		state = "stopped"
	}

	network := styles.ok.Render("online")
	if !s.Connected {
		network = styles.err.Render("offline")
	}

	rows := []string{
		row("State", indicator+" "+styles.state(state).Render(state)),
		row("Network", network),
		row("Queued", humanize.Comma(int64(s.Queued))),
		row("Last submission", shared.HumanTime(s.LastSubmission)),
	}
	if s.HardFailures > 0 {
		rows = append(rows, row("Hard failures", styles.warn.Render(fmt.Sprint(s.HardFailures))))
	}
	if !s.NextRetry.IsZero() {
		rows = append(rows, row("Next retry", humanize.Time(s.NextRetry)))
	}
	if s.NowPlayingInFlight {
		rows = append(rows, row("Now playing", "sending..."))
	}
	if s.LastError != "" {
		rows = append(rows, row("Last error", styles.err.Render(s.LastError)))
	}
	return strings.Join(rows, "\n") + "\n"
}

func (m *Model) renderEvents() string {
	if len(m.log) == 0 {
		return styles.help.Render("No engine events yet") + "\n"
	}

	var b strings.Builder
	for _, ev := range m.log {
		line := fmt.Sprintf("%s %-17s %s", ev.Time.Format("15:04:05"), ev.Kind, ev.Message)
		if ev.Kind == tasks.AuthFailure {
			line = styles.err.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func row(label, value string) string {
	return styles.label.Render(label+":") + value
}
