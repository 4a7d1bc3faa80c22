// Package tui is the terminal day picker. Choosing a day issues its
// addresses as a new batch and the panel follows the live map state.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/UnknownOlympus/waypoint/internal/itinerary"
	"github.com/UnknownOlympus/waypoint/internal/service"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 200 * time.Millisecond

// Engine is the day map driven by the picker.
type Engine interface {
	Submit(ctx context.Context, addresses []string) (uint64, error)
	Click(ctx context.Context, markerID string) error
	State() service.MapState
}

type refreshMsg struct{}

// dayItem implements list.Item for one itinerary day.
type dayItem struct {
	title string
	desc  string
}

func (i dayItem) Title() string       { return i.title }
func (i dayItem) Description() string { return i.desc }
func (i dayItem) FilterValue() string { return i.title }

// Model is the picker state.
type Model struct {
	ctx     context.Context
	engine  Engine
	plan    *itinerary.Itinerary
	days    list.Model
	spinner spinner.Model

	selected   int
	generation uint64
	state      service.MapState
	err        error

	width  int
	height int
}

// New returns a picker over the days of plan.
func New(ctx context.Context, engine Engine, plan *itinerary.Itinerary) *Model {
	items := make([]list.Item, len(plan.Days))
	for i := range plan.Days {
		addresses, _ := plan.DayAddresses(i)
		items[i] = dayItem{
			title: plan.Label(i),
			desc:  fmt.Sprintf("%d locations", len(addresses)),
		}
	}

	days := list.New(items, list.NewDefaultDelegate(), 30, 14)
	days.Title = plan.Destination
	if days.Title == "" {
		days.Title = "Itinerary"
	}
	days.SetShowStatusBar(false)
	days.SetFilteringEnabled(false)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &Model{
		ctx:      ctx,
		engine:   engine,
		plan:     plan,
		days:     days,
		spinner:  spin,
		selected: -1,
	}
}

func (m *Model) Init() tea.Cmd {
	if len(m.plan.Days) == 0 {
		return nil
	}

	return tea.Batch(m.spinner.Tick, m.selectDay(0))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.days.SetSize(max(20, msg.Width/3), max(6, msg.Height-4))
		return m, nil

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			m.click(int(key[0] - '1'))
			return m, nil
		}

	case refreshMsg:
		m.state = m.engine.State()
		if m.state.Pending {
			return m, refresh()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.days, cmd = m.days.Update(msg)

	if idx := m.days.Index(); idx != m.selected && len(m.plan.Days) > 0 {
		return m, tea.Batch(cmd, m.selectDay(idx))
	}

	return m, cmd
}

// selectDay issues the addresses of the day at idx as a new batch.
func (m *Model) selectDay(idx int) tea.Cmd {
	m.selected = idx

	addresses, err := m.plan.DayAddresses(idx)
	if err != nil {
		m.err = err
		return nil
	}

	generation, err := m.engine.Submit(m.ctx, addresses)
	if err != nil {
		m.err = err
		return nil
	}

	m.err = nil
	m.generation = generation
	m.state = m.engine.State()

	return refresh()
}

func (m *Model) click(n int) {
	if n < 0 || n >= len(m.state.Markers) {
		return
	}

	if err := m.engine.Click(m.ctx, m.state.Markers[n].ID); err != nil {
		m.err = err
		return
	}
	m.state = m.engine.State()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	headStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
)

func (m *Model) View() string {
	left := panelStyle.Render(m.days.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, panelStyle.Render(m.mapView()))
	footer := dimStyle.Render("↑/↓ choose day · 1-9 open marker · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m *Model) mapView() string {
	var b strings.Builder

	b.WriteString(headStyle.Render(fmt.Sprintf("Map · batch %d", m.generation)))
	b.WriteString("\n")

	if msg := m.errorText(); msg != "" {
		b.WriteString(errStyle.Render(msg))
		b.WriteString("\n")
	}

	if m.state.Pending {
		b.WriteString(m.spinner.View() + " resolving addresses\n")
	}

	vp := m.state.Viewport
	b.WriteString(dimStyle.Render(fmt.Sprintf("center %.5f, %.5f · zoom %d",
		vp.Center.Latitude, vp.Center.Longitude, vp.Zoom)))
	b.WriteString("\n\n")

	if len(m.state.Markers) == 0 {
		b.WriteString(dimStyle.Render("No markers"))
		b.WriteString("\n")
	}
	for i, entry := range m.state.Markers {
		fmt.Fprintf(&b, "%d. %s (%.5f, %.5f)\n", i+1, entry.Label,
			entry.Coordinates.Latitude, entry.Coordinates.Longitude)
	}

	if m.state.Popup != nil {
		b.WriteString("\n")
		b.WriteString(popupStyle.Render(m.state.Popup.Content))
	}

	return b.String()
}

func (m *Model) errorText() string {
	if m.err != nil {
		return m.err.Error()
	}

	return m.state.Error
}
