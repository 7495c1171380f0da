// Package tui renders clustered markers in the terminal. Each marker is a
// list row; pressing enter on one reports a point interaction.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb/geojson"

	"github.com/1F47E/geo-marker-cluster/pkg/render"
)

const interactionBuffer = 64

var ErrNilCollection = errors.New("nil feature collection")

// ErrAlreadyRun is returned by a second call to Run
var ErrAlreadyRun = errors.New("renderer already ran")

// markerItem is one rendered marker
type markerItem struct {
	interaction render.Interaction
}

func (i markerItem) Title() string {
	return markerStyle.Render("●") + " " + i.interaction.FeatureID
}

func (i markerItem) Description() string {
	loc := i.interaction.Location
	return fmt.Sprintf("%.5f, %.5f · %d feature(s)", loc.Lat, loc.Lon, i.interaction.Count)
}

func (i markerItem) FilterValue() string { return i.interaction.FeatureID }

type ingestMsg []list.Item

// model is the bubbletea state of the renderer
type model struct {
	list    list.Model
	spinner spinner.Model
	ready   bool
	status  string
	header  string
	emit    func(render.Interaction)
}

func newModel(header string, emit func(render.Interaction)) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	l := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Markers"
	l.Styles.Title = TitleStyle
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return model{list: l, spinner: s, header: header, emit: emit}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(markerItem); ok {
				if m.emit != nil {
					m.emit(item.interaction)
				}
				m.status = item.interaction.Message()
			}
			return m, nil
		}

	case ingestMsg:
		cmd := m.list.SetItems([]list.Item(msg))
		m.ready = true
		m.status = ""
		return m, cmd

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder

	if m.header != "" {
		b.WriteString(DimStyle.Render(m.header))
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.spinner.View() + " Clustering markers...\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(BoxStyle.Render(SuccessStyle.Render(m.status)))
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("enter: select marker · q: quit"))
	return b.String()
}

// Renderer shows markers in a bubbletea list and implements render.Renderer
type Renderer struct {
	mu      sync.Mutex
	items   []list.Item
	program *tea.Program
	events  chan render.Interaction
	ran     bool
	header  string
	opts    []tea.ProgramOption
	logger  *slog.Logger
}

type Option func(*Renderer)

// WithHeader shows a line above the marker list
func WithHeader(h string) Option {
	return func(r *Renderer) { r.header = h }
}

// WithIO replaces the terminal, mainly for tests
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *Renderer) {
		r.opts = append(r.opts, tea.WithInput(in), tea.WithOutput(out))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{events: make(chan render.Interaction, interactionBuffer)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Ingest replaces the displayed markers. It may be called before or while
// Run is active.
func (r *Renderer) Ingest(fc *geojson.FeatureCollection) error {
	if fc == nil {
		return ErrNilCollection
	}

	items := make([]list.Item, 0, len(fc.Features))
	for _, f := range fc.Features {
		items = append(items, markerItem{interaction: render.NewInteraction(f)})
	}

	r.mu.Lock()
	r.items = items
	p := r.program
	r.mu.Unlock()

	if p != nil {
		p.Send(ingestMsg(items))
	}
	return nil
}

// Interactions delivers selected markers. The channel is closed when Run
// returns.
func (r *Renderer) Interactions() <-chan render.Interaction {
	return r.events
}

// Run blocks until the user quits or ctx is cancelled. A Renderer runs once;
// later calls return ErrAlreadyRun.
func (r *Renderer) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return ErrAlreadyRun
	}
	r.ran = true
	defer close(r.events)

	m := newModel(r.header, r.send)
	if r.items != nil {
		m.list.SetItems(r.items)
		m.ready = true
	}
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, r.opts...)
	r.program = tea.NewProgram(m, opts...)
	p := r.program
	r.mu.Unlock()

	_, err := p.Run()

	r.mu.Lock()
	r.program = nil
	r.mu.Unlock()

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *Renderer) send(in render.Interaction) {
	select {
	case r.events <- in:
	default:
		r.logger.Warn("dropping interaction, no reader", "feature_id", in.FeatureID)
	}
}

var _ render.Renderer = (*Renderer)(nil)
