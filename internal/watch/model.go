package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytmp4/internal/jobs"
)

// DefaultInterval is how often the server is polled.
const DefaultInterval = 500 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#FFE66D")).
			Bold(true).
			Padding(0, 1)

	percentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00F5D4")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Faint(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D27A")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
)

// API is what the model needs from the server.
type API interface {
	Submit(ctx context.Context, mediaURL string, quality int) (string, error)
	Progress(ctx context.Context, id string) (jobs.State, error)
}

type submittedMsg struct{ id string }

type stateMsg struct{ state jobs.State }

type errMsg struct{ err error }

type tickMsg struct{}

// Model renders one job.
type Model struct {
	ctx      context.Context
	api      API
	url      string
	quality  int
	interval time.Duration

	id       string
	state    jobs.State
	err      error
	quitting bool

	bar   progressbar.Model
	spin  spinner.Model
	width int
}

func NewModel(ctx context.Context, api API, mediaURL string, quality int, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle
	return Model{
		ctx:      ctx,
		api:      api,
		url:      mediaURL,
		quality:  quality,
		interval: interval,
		state:    jobs.State{Status: jobs.StatusStarting},
		bar:      progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(40)),
		spin:     spin,
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.submit(), m.spin.Tick)
}

func (m Model) submit() tea.Cmd {
	return func() tea.Msg {
		id, err := m.api.Submit(m.ctx, m.url, m.quality)
		if err != nil {
			return errMsg{err: fmt.Errorf("submitting download: %w", err)}
		}
		return submittedMsg{id: id}
	}
}

func (m Model) poll() tea.Cmd {
	id := m.id
	return func() tea.Msg {
		state, err := m.api.Progress(m.ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("polling progress: %w", err)}
		}
		return stateMsg{state: state}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
	case submittedMsg:
		m.id = msg.id
		return m, m.poll()
	case tickMsg:
		return m, m.poll()
	case stateMsg:
		m.state = msg.state
		if m.state.Status.IsTerminal() {
			return m, tea.Quit
		}
		return m, m.tick()
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func barWidth(total int) int {
	width := total - 20
	if width < 10 {
		return 10
	}
	if width > 80 {
		return 80
	}
	return width
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ytmp4"))
	b.WriteString(" ")
	b.WriteString(m.url)
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	case m.state.Status == jobs.StatusComplete:
		b.WriteString(doneStyle.Render("✓ " + m.state.Filename))
		if m.state.DownloadURL != "" {
			b.WriteString("\n")
			b.WriteString(statusStyle.Render(m.state.DownloadURL))
		}
	case m.state.Status == jobs.StatusError:
		b.WriteString(errorStyle.Render("✗ " + m.state.Error))
	default:
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(m.bar.ViewAs(m.state.Progress / 100))
		b.WriteString(" ")
		b.WriteString(percentStyle.Render(fmt.Sprintf("%5.1f%%", m.state.Progress)))
		b.WriteString("\n")
		label := string(m.state.Status)
		if m.state.Filename != "" {
			label += " · " + m.state.Filename
		}
		b.WriteString(statusStyle.Render(label))
	}
	b.WriteString("\n")
	return b.String()
}

// Result reports how the model ended.
func (m Model) Result() (jobs.State, error) {
	return m.state, m.err
}
