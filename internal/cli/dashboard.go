package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/prodscope/prodscope/internal/conversation"
	"github.com/prodscope/prodscope/internal/health"
	"github.com/prodscope/prodscope/internal/metrics"
	"github.com/prodscope/prodscope/internal/workflow"
)

const chatWindow = 8 // visible messages in the chat panel

// stageTickMsg drives pipeline advancement and screen refresh.
type stageTickMsg time.Time

// healthTickMsg drives the data-source monitor.
type healthTickMsg time.Time

// sendDoneMsg reports a completed chat round-trip.
type sendDoneMsg struct {
	err     error
	elapsed time.Duration
}

// refreshDoneMsg reports a completed data-source refresh.
type refreshDoneMsg struct {
	err     error
	elapsed time.Duration
}

// dashboardModel composes the pipeline, chat and data-source panels. All
// domain state lives in the ledgers; the model only reads them and routes
// user actions to the controllers.
type dashboardModel struct {
	title      string
	theme      Theme
	logger     *slog.Logger
	ledger     *workflow.Ledger
	controller *conversation.Controller
	monitor    *health.Monitor
	collector  *metrics.Collector

	// liveStart, when non-nil, launches a real backend analysis run the
	// first time the pipeline is started. While it is set, stage ticks only
	// repaint; the feed drives the ledger.
	liveStart func(ctx context.Context) error
	started   bool

	overall progress.Model
	input   textinput.Model

	ctx    context.Context
	cancel context.CancelFunc

	stageTick  time.Duration
	healthTick time.Duration

	width      int
	height     int
	refreshing bool
	suggestIdx int
	quitting   bool
	errText    string
}

// dashboardDeps bundles what the dashboard needs from the command layer.
type dashboardDeps struct {
	title      string
	logger     *slog.Logger
	ledger     *workflow.Ledger
	controller *conversation.Controller
	monitor    *health.Monitor
	collector  *metrics.Collector
	liveStart  func(ctx context.Context) error
	stageTick  time.Duration
	healthTick time.Duration
}

// newDashboardModel creates the composed dashboard.
func newDashboardModel(deps dashboardDeps) dashboardModel {
	ctx, cancel := context.WithCancel(context.Background())

	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	input := textinput.New()
	input.Placeholder = "Ask about your product data..."
	input.Focus()

	return dashboardModel{
		title:      deps.title,
		theme:      defaultTheme,
		logger:     deps.logger,
		ledger:     deps.ledger,
		controller: deps.controller,
		monitor:    deps.monitor,
		collector:  deps.collector,
		liveStart:  deps.liveStart,
		overall:    prog,
		input:      input,
		ctx:        ctx,
		cancel:     cancel,
		stageTick:  deps.stageTick,
		healthTick: deps.healthTick,
	}
}

// Init starts the periodic timers.
func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		stageTickCmd(m.stageTick),
		healthTickCmd(m.healthTick),
		m.overall.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case stageTickMsg:
		if m.liveStart == nil && m.ledger.Running() {
			m.ledger.Tick()
		}
		return m, stageTickCmd(m.stageTick)

	case healthTickMsg:
		m.monitor.Tick()
		return m, healthTickCmd(m.healthTick)

	case sendDoneMsg:
		switch msg.err {
		case nil:
			m.collector.RecordTiming(metrics.OpChat, msg.elapsed)
			if p := lastProvider(m.controller.Ledger()); p != "" {
				m.collector.RecordProvider(p)
			}
		case conversation.ErrEmptyMessage, conversation.ErrSendInFlight:
			// rejected locally, nothing to show
		default:
			m.errText = "chat unavailable"
		}
		return m, nil

	case refreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.errText = "refresh failed"
		} else {
			m.collector.RecordTiming(metrics.OpRefresh, msg.elapsed)
			m.errText = ""
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.overall, cmd = m.overall.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m dashboardModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m.teardown()

	case "enter":
		return m.submit()

	case "ctrl+p":
		if m.ledger.Running() {
			m.ledger.Pause()
			return m, nil
		}
		return m.startPipeline()

	case "ctrl+r":
		m.ledger.Reset()
		m.started = false
		return m, nil

	case "ctrl+f":
		return m.refreshSources()

	case "ctrl+u":
		m.controller.ClearCompose()
		m.input.SetValue("")
		return m, nil

	case "tab":
		prompts := m.controller.SuggestedPrompts()
		if len(prompts) == 0 || m.ledger.Running() {
			return m, nil
		}
		m.suggestIdx = (m.suggestIdx + 1) % len(prompts)
		m.controller.SetCompose(prompts[m.suggestIdx])
		m.input.SetValue(prompts[m.suggestIdx])
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.controller.SetCompose(m.input.Value())
	return m, cmd
}

// submit sends the compose buffer as one chat round-trip. The send runs as
// a command; the user message is in the ledger before the deliverer is
// awaited, so the next repaint shows it.
func (m dashboardModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.controller.Awaiting() {
		return m, nil
	}
	m.input.SetValue("")

	controller := m.controller
	ctx := m.ctx
	start := time.Now()
	return m, func() tea.Msg {
		err := controller.Send(ctx, text)
		return sendDoneMsg{err: err, elapsed: time.Since(start)}
	}
}

func (m dashboardModel) startPipeline() (tea.Model, tea.Cmd) {
	m.ledger.Start()
	if m.liveStart == nil || m.started {
		return m, nil
	}
	m.started = true

	liveStart := m.liveStart
	ctx := m.ctx
	logger := m.logger
	return m, func() tea.Msg {
		if err := liveStart(ctx); err != nil && !workflow.IsTeardown(err) {
			logger.Error("live analysis failed", "error", err)
		}
		return nil
	}
}

func (m dashboardModel) refreshSources() (tea.Model, tea.Cmd) {
	if m.refreshing {
		return m, nil
	}
	m.refreshing = true

	monitor := m.monitor
	ctx := m.ctx
	start := time.Now()
	return m, func() tea.Msg {
		err := monitor.RefreshAll(ctx)
		return refreshDoneMsg{err: err, elapsed: time.Since(start)}
	}
}

// teardown cancels timers and in-flight calls; late results are dropped by
// the controller and monitor guards.
func (m dashboardModel) teardown() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	m.controller.Close()
	m.monitor.Close()
	return m, tea.Quit
}

// View renders the three panels side by side.
func (m dashboardModel) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	header := m.renderHeader()
	pipeline := m.theme.panelStyle().Render(m.renderPipeline())
	chat := m.theme.panelStyle().Render(m.renderChat())
	sources := m.theme.panelStyle().Render(m.renderSources())

	body := lipgloss.JoinHorizontal(lipgloss.Top, pipeline, chat, sources)
	footer := m.renderFooter()

	return tea.NewView(lipgloss.JoinVertical(lipgloss.Left, header, body, footer))
}

func (m dashboardModel) renderHeader() string {
	pct := m.ledger.OverallProgress()
	bar := m.overall.ViewAs(pct / 100)
	eta := m.ledger.EstimatedTimeRemaining()

	title := m.theme.titleStyle().Render(m.title)
	line := fmt.Sprintf("%s  %s %3.0f%%  %s", title, bar, pct,
		m.theme.hintStyle().Render("eta "+eta))
	if m.errText != "" {
		line += "  " + m.theme.errorStyle().Render(m.errText)
	}
	return line
}

func (m dashboardModel) renderPipeline() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Insight Pipeline"))
	b.WriteString("\n")

	for _, s := range m.ledger.Stages() {
		status := m.theme.statusStyle(string(s.Status)).Render(stageGlyph(s.Status))
		b.WriteString(fmt.Sprintf("%s %d. %s\n", status, s.ID, s.Title))
		if s.Status == workflow.StatusInProgress {
			b.WriteString("   " + miniBar(s.Progress, 20, m.theme) +
				fmt.Sprintf(" %d%%", s.Progress))
			b.WriteString("\n")
		}
		b.WriteString("   " + m.theme.hintStyle().Render(
			s.AssignedProvider+" · "+strings.Join(s.DataSources, ", ")))
		b.WriteString("\n")
	}

	if m.ledger.Done() {
		b.WriteString("\n" + m.theme.successStyle().Render("✓ Analysis complete"))
	}
	return b.String()
}

func (m dashboardModel) renderChat() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Analyst Chat"))
	b.WriteString("\n")

	msgs := m.controller.Ledger().Messages()
	if len(msgs) > chatWindow {
		msgs = msgs[len(msgs)-chatWindow:]
	}
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
	}

	if m.controller.Awaiting() {
		b.WriteString(m.theme.hintStyle().Render("analyst is thinking...") + "\n")
	}

	if prompts := m.controller.SuggestedPrompts(); len(prompts) > 0 && !m.ledger.Running() {
		b.WriteString(m.theme.hintStyle().Render("try (tab to cycle):") + "\n")
		for _, p := range prompts {
			b.WriteString(m.theme.hintStyle().Render("  · "+p) + "\n")
		}
	}

	b.WriteString("\n" + m.input.View())
	return b.String()
}

func (m dashboardModel) renderMessage(msg conversation.Message) string {
	var prefix string
	switch msg.Role {
	case conversation.RoleUser:
		prefix = m.theme.warningStyle().Render("you ")
	case conversation.RoleAssistant:
		prefix = m.theme.successStyle().Render("ai  ")
	default:
		prefix = m.theme.hintStyle().Render("sys ")
	}

	line := prefix + truncate(msg.Content, 64) + "\n"
	if msg.Delivery == conversation.DeliveryError {
		line = prefix + m.theme.errorStyle().Render(truncate(msg.Content, 64)) + "\n"
	}
	if msg.Meta != nil {
		line += "    " + m.theme.hintStyle().Render(fmt.Sprintf("%s · %.1fs · %s",
			msg.Meta.Provider,
			float64(msg.Meta.ProcessingTimeMs)/1000,
			strings.Join(msg.Meta.DataSourcesUsed, ", "))) + "\n"
	}
	return line
}

func (m dashboardModel) renderSources() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Data Sources"))
	b.WriteString("\n")

	now := time.Now()
	for _, r := range m.monitor.Records() {
		status := m.theme.statusStyle(string(r.Status)).Render(string(r.Status))
		b.WriteString(fmt.Sprintf("%s %s\n", r.Name, status))

		detail := "sync " + r.LastSyncLabel(now)
		if r.ResponseTimeMs > 0 {
			detail += fmt.Sprintf(" · %dms", r.ResponseTimeMs)
		}
		if r.RecordCount > 0 {
			detail += fmt.Sprintf(" · %d records", r.RecordCount)
		}
		b.WriteString("  " + m.theme.hintStyle().Render(detail) + "\n")
	}

	b.WriteString(fmt.Sprintf("\nhealth %.0f%%", m.monitor.HealthFraction()*100))
	if m.refreshing {
		b.WriteString(" " + m.theme.hintStyle().Render("refreshing..."))
	}
	return b.String()
}

func (m dashboardModel) renderFooter() string {
	hints := "enter send · ctrl+p run/pause · ctrl+r reset · ctrl+f refresh · ctrl+c quit"

	snap := m.collector.Snapshot()
	if snap.Chat != nil {
		hints += fmt.Sprintf("  |  %d chats, avg %.0fms", snap.Chat.Count, snap.Chat.AvgTimeMs)
	}
	return m.theme.hintStyle().Render(hints)
}

// lastProvider returns the provider of the most recent assistant reply.
func lastProvider(l *conversation.Ledger) string {
	msgs := l.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleAssistant && msgs[i].Meta != nil {
			return msgs[i].Meta.Provider
		}
	}
	return ""
}

func stageGlyph(s workflow.Status) string {
	switch s {
	case workflow.StatusCompleted:
		return "✓"
	case workflow.StatusInProgress:
		return "▶"
	case workflow.StatusError:
		return "✗"
	default:
		return "·"
	}
}

// miniBar renders a fixed-width per-stage progress bar.
func miniBar(pct, width int, t Theme) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(t.Accent).Render(bar)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// stageTickCmd returns a command that ticks the pipeline after the interval.
func stageTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return stageTickMsg(t)
	})
}

// healthTickCmd returns a command that ticks the health monitor.
func healthTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return healthTickMsg(t)
	})
}
