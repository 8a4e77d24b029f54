// ABOUTME: Bubbletea model for the dashboard TUI
// ABOUTME: Renders status, now playing, system stats, sparklines, and the idle clock
package ui

import (
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nomad-pi/nomad-display/internal/dashboard"
	"github.com/nomad-pi/nomad-display/internal/protocol"
	"github.com/nomad-pi/nomad-display/internal/version"
)

const (
	chartWidth  = 28
	chartHeight = 4
)

// SnapshotMsg carries the latest published state from the scheduling loop.
type SnapshotMsg struct {
	Status        string
	Source        string
	Idle          bool
	PosterLoading bool
	HavePoster    bool
	Dark          bool

	Session *dashboard.SessionView
	System  *dashboard.SystemView
	History dashboard.HistorySnapshot
}

type clockTickMsg time.Time

// Model represents the TUI state.
type Model struct {
	ctrl *Controls

	status        string
	source        string
	idle          bool
	posterLoading bool
	havePoster    bool

	session     dashboard.SessionView
	haveSession bool
	system      dashboard.SystemView
	haveSystem  bool

	cpuChart  sparkline.Model
	ramChart  sparkline.Model
	downChart sparkline.Model
	upChart   sparkline.Model

	theme theme
	now   time.Time

	width  int
	height int
}

// NewModel creates the TUI model.
func NewModel(ctrl *Controls) Model {
	th := newTheme(true)
	return Model{
		ctrl:      ctrl,
		status:    "Disconnected",
		cpuChart:  sparkline.New(chartWidth, chartHeight, sparkline.WithMaxValue(100), sparkline.WithStyle(th.chart)),
		ramChart:  sparkline.New(chartWidth, chartHeight, sparkline.WithMaxValue(100), sparkline.WithStyle(th.chart)),
		downChart: sparkline.New(chartWidth, chartHeight, sparkline.WithStyle(th.chart)),
		upChart:   sparkline.New(chartWidth, chartHeight, sparkline.WithStyle(th.chart)),
		theme:     th,
		now:       time.Now(),
	}
}

// Init starts the clock tick for the idle screen.
func (m Model) Init() tea.Cmd {
	return clockTick()
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case clockTickMsg:
		m.now = time.Time(msg)
		return m, clockTick()
	case SnapshotMsg:
		m.applySnapshot(msg)
	}

	return m, nil
}

// handleKey handles keyboard input. Every key counts as user activity.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notifyActivity()

	switch msg.String() {
	case "q", "ctrl+c":
		if m.ctrl != nil {
			select {
			case m.ctrl.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit

	case "s":
		if m.haveSession {
			m.sendCommand(protocol.ActionStop)
		}

	case " ":
		if m.haveSession {
			if m.session.Paused() {
				m.sendCommand(protocol.ActionResume)
			} else {
				m.sendCommand(protocol.ActionPause)
			}
		}
	}

	return m, nil
}

func (m Model) notifyActivity() {
	if m.ctrl == nil {
		return
	}
	select {
	case m.ctrl.Activity <- struct{}{}:
	default:
	}
}

func (m Model) sendCommand(action string) {
	if m.ctrl == nil {
		return
	}
	select {
	case m.ctrl.Commands <- CommandMsg{Action: action}:
	default:
	}
}

// applySnapshot updates model state from the scheduling loop.
func (m *Model) applySnapshot(msg SnapshotMsg) {
	m.status = msg.Status
	m.source = msg.Source
	m.idle = msg.Idle
	m.posterLoading = msg.PosterLoading
	m.havePoster = msg.HavePoster

	if m.theme.dark != msg.Dark {
		m.theme = newTheme(msg.Dark)
	}

	if msg.Session != nil {
		m.session = *msg.Session
		m.haveSession = true
	} else {
		m.haveSession = false
	}
	if msg.System != nil {
		m.system = *msg.System
		m.haveSystem = true
	}

	redraw(&m.cpuChart, msg.History.CPU)
	redraw(&m.ramChart, msg.History.RAM)
	redraw(&m.downChart, msg.History.NetDown)
	redraw(&m.upChart, msg.History.NetUp)
}

func redraw(c *sparkline.Model, values []float64) {
	c.Clear()
	c.PushAll(values)
	c.Draw()
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.idle {
		return m.renderIdleClock()
	}

	s := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderNowPlaying(),
		m.renderSystem(),
		m.renderCharts(),
		m.renderHelp(),
	)
	return m.theme.screen.Render(s)
}

// renderIdleClock is the full-screen screensaver clock.
func (m Model) renderIdleClock() string {
	clock := m.theme.idleClock.Render(m.now.Format("15:04:05"))
	date := m.theme.idleDate.Render(m.now.Format("Monday, January 2"))
	content := lipgloss.JoinVertical(lipgloss.Center, clock, date)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderHeader() string {
	title := m.theme.title.Render(version.Product)

	status := m.theme.statusBad.Render(m.status)
	if m.status == "Online" {
		status = m.theme.statusGood.Render(m.status)
	}

	line := status
	if m.source != "" {
		line += m.theme.dim.Render("  " + m.source)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", line)
}

func (m Model) renderNowPlaying() string {
	if !m.haveSession {
		return m.theme.card.Render(m.theme.dim.Render("Nothing playing"))
	}

	s := m.session
	title := m.theme.trackTitle.Render(truncate(s.Title, 40))

	state := s.State
	if s.Paused() {
		state = "paused"
	}
	meta := fmt.Sprintf("%s  %s  %s", s.Username, s.MediaType, state)
	if s.BitrateLabel != "" {
		meta += "  " + s.BitrateLabel
	}

	times := fmt.Sprintf("%s / %s  (-%s)", s.Elapsed, s.Length, s.Remaining)
	bar := renderBar(s.Progress, 44)

	poster := ""
	if m.posterLoading {
		poster = m.theme.dim.Render("poster loading...")
	} else if m.havePoster {
		poster = m.theme.dim.Render("poster ready")
	}

	lines := []string{title, m.theme.dim.Render(meta), bar, times}
	if poster != "" {
		lines = append(lines, poster)
	}
	return m.theme.card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderSystem() string {
	if !m.haveSystem {
		return m.theme.card.Render(m.theme.dim.Render("No server stats yet"))
	}

	sys := m.system
	stats := fmt.Sprintf("CPU %.0f%%  RAM %.0f%%  Disk %.0f%%  Users %d  Up %s",
		sys.CPUPercent, sys.RAMPercent, sys.DiskPercent, sys.ActiveUsers, sys.Uptime)
	net := fmt.Sprintf("Down %s  Up %s", sys.DownRate, sys.UpRate)

	return m.theme.card.Render(lipgloss.JoinVertical(lipgloss.Left, stats, m.theme.dim.Render(net)))
}

func (m Model) renderCharts() string {
	cpu := lipgloss.JoinVertical(lipgloss.Left, m.theme.chartLabel.Render("CPU"), m.cpuChart.View())
	ram := lipgloss.JoinVertical(lipgloss.Left, m.theme.chartLabel.Render("RAM"), m.ramChart.View())
	down := lipgloss.JoinVertical(lipgloss.Left, m.theme.chartLabel.Render("Net down"), m.downChart.View())
	up := lipgloss.JoinVertical(lipgloss.Left, m.theme.chartLabel.Render("Net up"), m.upChart.View())

	top := lipgloss.JoinHorizontal(lipgloss.Top, cpu, "  ", ram)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, down, "  ", up)
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
}

func (m Model) renderHelp() string {
	return m.theme.dim.Render("space:pause/resume  s:stop  q:quit")
}

// theme holds the lipgloss styles for the active color scheme.
type theme struct {
	dark bool

	screen     lipgloss.Style
	title      lipgloss.Style
	statusGood lipgloss.Style
	statusBad  lipgloss.Style
	card       lipgloss.Style
	trackTitle lipgloss.Style
	dim        lipgloss.Style
	chart      lipgloss.Style
	chartLabel lipgloss.Style
	idleClock  lipgloss.Style
	idleDate   lipgloss.Style
}

func newTheme(dark bool) theme {
	fg := lipgloss.Color("252")
	dim := lipgloss.Color("242")
	accent := lipgloss.Color("75")
	if !dark {
		fg = lipgloss.Color("236")
		dim = lipgloss.Color("245")
		accent = lipgloss.Color("27")
	}

	return theme{
		dark:       dark,
		screen:     lipgloss.NewStyle().Padding(1, 2),
		title:      lipgloss.NewStyle().Bold(true).Foreground(accent),
		statusGood: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		statusBad:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dim).
			Padding(0, 1).
			MarginTop(1).
			Foreground(fg),
		trackTitle: lipgloss.NewStyle().Bold(true).Foreground(fg),
		dim:        lipgloss.NewStyle().Foreground(dim),
		chart:      lipgloss.NewStyle().Foreground(accent),
		chartLabel: lipgloss.NewStyle().Foreground(dim).MarginTop(1),
		idleClock:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		idleDate:   lipgloss.NewStyle().Foreground(dim),
	}
}

func renderBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
