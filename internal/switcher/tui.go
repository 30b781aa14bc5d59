package switcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/keystate"
	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/mux"
	ppotel "github.com/timvw/tab-switcher/internal/otel"
	"github.com/timvw/tab-switcher/internal/preview"
)

var tracer = otel.Tracer("tab-switcher")

// OrderSaver persists the MRU order. state.Scope implements it.
type OrderSaver interface {
	SaveOrder([]model.TabIdentity) error
}

// TUI runs one overlay session.
type TUI struct {
	Mux       mux.Multiplexer
	Scope     string
	Tabs      []model.Tab
	Origin    model.TabIdentity
	Direction Direction

	Machine   *Machine
	Cache     *preview.Cache
	Scheduler *preview.Scheduler
	Probe     keystate.Probe
	// Commands carries socket commands from other invocations; may be nil.
	Commands <-chan keystate.Message
	Saver    OrderSaver

	Theme   Theme
	Metrics *ppotel.Metrics
	Log     pslog.Logger
	// Notices receives user-facing failure notices (typically stderr).
	Notices io.Writer
	// ProgramOptions are appended to the bubbletea options.
	ProgramOptions []tea.ProgramOption
}

// messages
type pollMsg struct{}

type heldMsg struct {
	held bool
	err  error
}

type fetchResultMsg struct {
	id    model.TabIdentity
	lines []string
	err   error
	at    time.Time
}

type commandMsg struct {
	msg keystate.Message
}

type tabsMsg struct {
	tabs []model.Tab
	err  error
}

type keyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Commit key.Binding
	Cancel key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "right", "down", "l", "j", "ctrl+n"),
			key.WithHelp("tab", "next"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "left", "up", "h", "k", "ctrl+p"),
			key.WithHelp("shift+tab", "prev"),
		),
		Commit: key.NewBinding(
			key.WithKeys("enter", "q", " "),
			key.WithHelp("enter", "switch"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c", "ctrl+g"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// tuiModel implements tea.Model
type tuiModel struct {
	ctx      context.Context
	mux      mux.Multiplexer
	scope    string
	machine  *Machine
	cache    *preview.Cache
	sched    *preview.Scheduler
	probe    keystate.Probe
	commands <-chan keystate.Message
	saver    OrderSaver
	metrics  *ppotel.Metrics
	log      pslog.Logger
	now      func() time.Time

	titles    map[string]string
	live      []model.TabIdentity
	keys      keyMap
	styles    styles
	origin    model.TabIdentity
	direction Direction
	probing   bool

	// dimensions
	width  int
	height int

	outcome Outcome
	done    bool
}

// Run opens the overlay, blocks until it closes, then applies the outcome:
// activation, MRU update and persistence. Activation failures are reported
// through Notices and the returned outcome, never as an error.
func (t *TUI) Run(ctx context.Context) (Outcome, error) {
	m := t.newModel(ctx)
	if !m.open() {
		return Outcome{}, nil
	}

	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, t.ProgramOptions...)
	p := tea.NewProgram(m, opts...)
	final, err := p.Run()
	if fm, ok := final.(*tuiModel); ok {
		m = fm
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		m.machine.Finish(Outcome{}, nil)
		return Outcome{}, fmt.Errorf("overlay: %w", err)
	}
	o := m.outcome
	if !m.done {
		// Interrupted from outside (context cancelled): treat as cancel.
		o = m.machine.Escape(m.now())
	}
	return o, t.apply(ctx, m, o)
}

func (t *TUI) newModel(ctx context.Context) *tuiModel {
	log := t.Log
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	m := &tuiModel{
		ctx:      ctx,
		mux:      t.Mux,
		scope:    t.Scope,
		machine:  t.Machine,
		cache:    t.Cache,
		sched:    t.Scheduler,
		probe:    t.Probe,
		commands: t.Commands,
		saver:    t.Saver,
		metrics:  t.Metrics,
		log:      log.With("component", "switcher", "scope", t.Scope),
		now:      time.Now,
		titles:   model.Titles(t.Tabs),
		live:     model.Identities(t.Tabs),
		keys:     defaultKeyMap(),
		styles:   newStyles(t.Theme),
		origin:   t.Origin,
	}
	if t.Direction == Backward {
		m.direction = Backward
	} else {
		m.direction = Forward
	}
	return m
}

// open reconciles the stack against the live tabs and opens the session.
// It reports false when there is nothing to switch between.
func (m *tuiModel) open() bool {
	if len(m.live) == 0 {
		m.log.Info("no tabs to switch between")
		return false
	}
	removed := m.machine.Reconcile(m.live)
	for _, id := range removed {
		m.cache.Evict(id.Tab)
	}
	m.cache.Retain(m.live)
	m.machine.Open(m.direction, m.origin, m.now())
	m.saveOrder()
	if s, ok := m.machine.Session(); ok {
		m.log = m.log.With("session", s.ID)
		m.log.Debug("overlay open", "origin", m.origin.Tab, "tabs", m.machine.Stack().Len(), "highlight", s.Highlight)
	}
	return true
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(m.schedulePoll(), m.scheduleFetch(), waitForCommand(m.commands))
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.done {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pollMsg:
		if m.probing {
			return m, nil
		}
		m.probing = true
		return m, m.sampleModifier()

	case heldMsg:
		m.probing = false
		held := msg.held
		if msg.err != nil {
			// Unknown modifier state never commits.
			m.log.Debug("modifier probe failed", "err", msg.err)
			held = true
		}
		m.metrics.RecordPoll(m.ctx, held)
		now := m.now()
		if o := m.machine.Poll(held, now); o.Kind != OutcomeNone || m.machine.State() == Closing {
			m.log.Debug("modifier released", "outcome", o.Kind.String())
			return m.finish(o)
		}
		return m, tea.Batch(m.schedulePoll(), m.scheduleFetch())

	case fetchResultMsg:
		m.sched.Complete(msg.id, msg.lines, msg.at, msg.err)
		if errors.Is(msg.err, mux.ErrTabNotFound) {
			return m, m.refreshTabs()
		}
		return m, nil

	case tabsMsg:
		if msg.err != nil {
			m.log.Warn("tab refresh failed", "err", msg.err)
			return m, nil
		}
		m.applyTabs(msg.tabs)
		if m.machine.Stack().Len() == 0 {
			return m.finish(Outcome{})
		}
		return m, m.scheduleFetch()

	case commandMsg:
		return m.handleCommand(msg.msg)
	}
	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	now := m.now()
	switch {
	case key.Matches(msg, m.keys.Next):
		return m.cycle(keystate.CmdNext, now)
	case key.Matches(msg, m.keys.Prev):
		return m.cycle(keystate.CmdPrev, now)
	case key.Matches(msg, m.keys.Commit):
		return m.finish(m.machine.Commit(now))
	case key.Matches(msg, m.keys.Cancel):
		return m.finish(m.machine.Escape(now))
	}
	return m, nil
}

func (m *tuiModel) handleCommand(msg keystate.Message) (tea.Model, tea.Cmd) {
	now := m.now()
	m.log.Trace("command", "cmd", string(msg.Command))
	var (
		next tea.Model = m
		cmd  tea.Cmd
	)
	switch msg.Command {
	case keystate.CmdNext, keystate.CmdPrev:
		next, cmd = m.cycle(msg.Command, now)
	case keystate.CmdCommit:
		return m.finish(m.machine.Commit(now))
	case keystate.CmdCancel:
		return m.finish(m.machine.Escape(now))
	default:
		m.probe.Observe(msg.Command, now)
	}
	return next, tea.Batch(cmd, waitForCommand(m.commands))
}

func (m *tuiModel) cycle(c keystate.Command, now time.Time) (tea.Model, tea.Cmd) {
	m.probe.Observe(c, now)
	m.machine.Cycle(c.Delta(), now)
	if s, ok := m.machine.Session(); ok {
		m.log.Trace("cycle", "cmd", string(c), "highlight", s.Highlight)
	}
	return m, m.scheduleFetch()
}

// finish records the outcome and stops the program. Activation happens in
// TUI.apply once the overlay is gone.
func (m *tuiModel) finish(o Outcome) (tea.Model, tea.Cmd) {
	m.outcome = o
	m.done = true
	return m, tea.Quit
}

// schedulePoll arms the next modifier sample at the machine's interval.
func (m *tuiModel) schedulePoll() tea.Cmd {
	return tea.Tick(m.machine.PollInterval(m.now()), func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

func (m *tuiModel) sampleModifier() tea.Cmd {
	probe := m.probe
	ctx := m.ctx
	return func() tea.Msg {
		held, err := probe.ModifierHeld(ctx)
		return heldMsg{held: held, err: err}
	}
}

// scheduleFetch runs one scheduler decision and turns a dispatch into an
// asynchronous capture.
func (m *tuiModel) scheduleFetch() tea.Cmd {
	h := m.machine.Highlight()
	if h < 0 {
		return nil
	}
	candidates := m.sched.Candidates(m.machine.Stack().Order(), h)
	id, ok := m.sched.Tick(m.now(), candidates)
	if !ok {
		return nil
	}
	sched := m.sched
	ctx := m.ctx
	now := m.now
	return func() tea.Msg {
		lines, err := sched.Fetch(ctx, id)
		return fetchResultMsg{id: id, lines: lines, err: err, at: now()}
	}
}

func (m *tuiModel) refreshTabs() tea.Cmd {
	mx := m.mux
	ctx := m.ctx
	scope := m.scope
	return func() tea.Msg {
		tabs, err := mx.ListTabs(ctx, scope)
		return tabsMsg{tabs: tabs, err: err}
	}
}

func (m *tuiModel) applyTabs(tabs []model.Tab) {
	m.titles = model.Titles(tabs)
	live := model.Identities(tabs)
	removed := m.machine.Reconcile(live)
	for _, id := range removed {
		m.cache.Evict(id.Tab)
		m.log.Debug("tab closed", "tab", id.Tab)
	}
	m.cache.Retain(live)
	m.saveOrder()
}

func (m *tuiModel) saveOrder() {
	if m.saver == nil {
		return
	}
	if err := m.saver.SaveOrder(m.machine.Stack().Order()); err != nil {
		m.log.Warn("mru save failed", "err", err)
	}
}

func waitForCommand(ch <-chan keystate.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return commandMsg{msg: msg}
	}
}

// apply performs the outcome against the multiplexer and persists state.
func (t *TUI) apply(ctx context.Context, m *tuiModel, o Outcome) error {
	// The program may have ended because ctx was cancelled; activation and
	// the final save must still run.
	ctx = context.WithoutCancel(ctx)
	var activateErr error
	label := o.Kind.String()

	switch {
	case o.Kind == OutcomeCommit:
		activateErr = t.activate(ctx, o.Target)
	case o.Kind == OutcomeCancel && o.Restore:
		// The overlay never moves focus, so restoring the origin only
		// matters when something else focused a tab meanwhile.
		if err := t.activate(ctx, o.Target); err != nil {
			m.log.Warn("restore origin failed", "tab", o.Target.Tab, "err", err)
		}
	}

	if activateErr != nil {
		label = "activate_error"
		m.log.Warn("activate failed", "tab", o.Target.Tab, "err", activateErr)
		if t.Notices != nil {
			fmt.Fprintf(t.Notices, "tab-switcher: could not switch to %s: %v\n", m.titleOf(o.Target), activateErr)
		}
		if errors.Is(activateErr, mux.ErrTabNotFound) {
			m.machine.TabClosed(o.Target)
			m.cache.Evict(o.Target.Tab)
		}
	}

	m.machine.Finish(o, activateErr)
	m.metrics.RecordOutcome(ctx, label)
	m.log.Info("overlay closed", "outcome", label, "target", o.Target.Tab)
	m.saveOrder()
	m.cache.Persist()
	return nil
}

func (t *TUI) activate(ctx context.Context, id model.TabIdentity) error {
	ctx, span := tracer.Start(ctx, "activate_tab",
		trace.WithAttributes(
			attribute.String("mux", t.Mux.Name()),
			attribute.String("tab.id", id.Tab),
		))
	defer span.End()
	if err := t.Mux.ActivateTab(ctx, id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// View renders the visible window of cards around the highlight.
func (m *tuiModel) View() string {
	if m.done {
		return ""
	}
	order := m.machine.Stack().Order()
	h := m.machine.Highlight()
	if len(order) == 0 || h < 0 {
		return m.styles.empty.Render("no tabs")
	}

	cfg := m.sched.Config()
	maxCards := cfg.MaxVisible
	if m.width > 0 {
		// border (2) + padding (2) + gap (1)
		if fit := m.width / (cfg.Cols + 5); fit < maxCards {
			maxCards = fit
		}
	}
	if maxCards < 1 {
		maxCards = 1
	}
	start, end := preview.VisibleWindow(len(order), h, maxCards)

	now := m.now()
	cards := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		cards = append(cards, m.renderCard(order[i], i, i == h, now, cfg))
		if i < end-1 {
			cards = append(cards, " ")
		}
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top, cards...)

	var b strings.Builder
	b.WriteString(row)
	b.WriteString("\n")
	b.WriteString(m.renderFooter(len(order), h))
	out := b.String()
	if m.width > 0 && m.height > 0 {
		out = lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, out)
	}
	return out
}

func (m *tuiModel) renderCard(id model.TabIdentity, idx int, selected bool, now time.Time, cfg preview.SchedulerConfig) string {
	title := fmt.Sprintf("%d %s", idx+1, m.titleOf(id))
	if id.SameTab(m.origin) {
		title += " " + m.styles.origin.Render("●")
	}
	title = ansi.Truncate(title, cfg.Cols, "…")

	titleStyle := m.styles.title
	cardStyle := m.styles.card
	if selected {
		titleStyle = m.styles.titleSel
		cardStyle = m.styles.cardSelected
	}

	lines := make([]string, 0, cfg.Rows+1)
	lines = append(lines, titleStyle.Render(title))

	entry, ok := m.cache.Get(id.PreviewKey())
	body := entry.Lines
	stale := !ok || m.cache.IsStale(id.PreviewKey(), cfg.StaleAfter, now)
	if len(body) == 0 {
		placeholder := "…"
		if ok && !entry.InFlight && !entry.CapturedAt.IsZero() {
			placeholder = "(empty)"
		}
		body = []string{m.styles.empty.Render(placeholder)}
		stale = false
	}
	for i := 0; i < cfg.Rows; i++ {
		line := ""
		if i < len(body) {
			line = body[i]
		}
		if stale {
			line = m.styles.stale.Render(ansi.Strip(line))
		}
		lines = append(lines, line)
	}
	return cardStyle.Width(cfg.Cols + 2).Render(strings.Join(lines, "\n"))
}

func (m *tuiModel) renderFooter(n, h int) string {
	hints := []struct{ k, d string }{
		{m.keys.Next.Help().Key, m.keys.Next.Help().Desc},
		{m.keys.Prev.Help().Key, m.keys.Prev.Help().Desc},
		{m.keys.Commit.Help().Key, m.keys.Commit.Help().Desc},
		{m.keys.Cancel.Help().Key, m.keys.Cancel.Help().Desc},
	}
	parts := []string{m.styles.hintDesc.Render(fmt.Sprintf("%d/%d", h+1, n))}
	for _, hint := range hints {
		parts = append(parts, m.styles.hintKey.Render(hint.k)+" "+m.styles.hintDesc.Render(hint.d))
	}
	return strings.Join(parts, "  ")
}

func (m *tuiModel) titleOf(id model.TabIdentity) string {
	if t, ok := m.titles[id.Tab]; ok && t != "" {
		return t
	}
	return id.Tab
}
