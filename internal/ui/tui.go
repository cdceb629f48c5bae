package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws ingestion progress as a bubbletea program.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newIngestModel(cfg.Title, GetStyles(cfg.NoColor || DetectNoColor()), cfg.OnInterrupt),
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.started = true
	r.program = tea.NewProgram(r.model, tea.WithOutput(r.cfg.Output), tea.WithContext(ctx))

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type (
	progressMsg ProgressEvent
	completeMsg CompletionStats
)

// ingestModel is the bubbletea model for ingestion progress.
type ingestModel struct {
	title       string
	styles      Styles
	onInterrupt func()

	event      ProgressEvent
	stageStart time.Time
	width      int

	quitting bool
	complete bool
	stats    CompletionStats

	spinner     spinner.Model
	progressBar progress.Model
}

func newIngestModel(title string, styles Styles, onInterrupt func()) *ingestModel {
	if title == "" {
		title = "catalogmatch ingest"
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Progress

	return &ingestModel{
		title:       title,
		styles:      styles,
		onInterrupt: onInterrupt,
		stageStart:  time.Now(),
		width:       80,
		spinner:     s,
		progressBar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-24, 20)

	case progressMsg:
		if ProgressEvent(msg).Stage != m.event.Stage {
			m.stageStart = time.Now()
		}
		m.event = ProgressEvent(msg)

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		var b strings.Builder
		writeSummary(&b, m.stats, m.styles)
		return b.String()
	}

	width := max(m.width-4, 40)
	sections := []string{
		m.styles.Header.Render(m.title),
		m.renderStages(),
		m.styles.Dim.Render(strings.Repeat("─", width)),
		m.renderProgress(),
	}
	if rate := m.renderRate(); rate != "" {
		sections = append(sections, rate)
	}
	sections = append(sections, m.styles.Dim.Render("q to cancel"))

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)
	return panel.Render(strings.Join(sections, "\n")) + "\n"
}

func (m *ingestModel) renderStages() string {
	stages := []Stage{StageLoading, StageEmbedding, StageIndexing}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < m.event.Stage:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == m.event.Stage:
			parts = append(parts, m.styles.Header.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderProgress() string {
	if m.event.Total <= 0 {
		msg := m.event.Message
		if msg == "" {
			msg = "Preparing..."
		}
		return m.spinner.View() + " " + m.styles.Label.Render(msg)
	}

	pct := float64(m.event.Current) / float64(m.event.Total)
	return fmt.Sprintf("%s  %s\n%s",
		m.progressBar.ViewAs(min(pct, 1)),
		m.styles.Header.Render(fmt.Sprintf("%3.0f%%", pct*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d entries", m.event.Current, m.event.Total)))
}

// renderRate shows throughput and ETA for the current stage.
func (m *ingestModel) renderRate() string {
	elapsed := time.Since(m.stageStart)
	if m.event.Total <= 0 || m.event.Current <= 0 || elapsed <= 0 {
		return ""
	}
	rate := float64(m.event.Current) / elapsed.Seconds()
	out := fmt.Sprintf("Speed: %.0f/s", rate)
	if remaining := m.event.Total - m.event.Current; remaining > 0 && rate > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		out += "  •  ETA: " + formatDuration(eta)
	}
	return m.styles.Label.Render(out)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

var _ Renderer = (*TUIRenderer)(nil)
