package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
	"github.com/u4s/turnover-cli/internal/output"
)

type mode int

const (
	modeBrowse mode = iota
	modePassword
	modeRange
)

// restoredMsg carries the outcome of the startup session restore.
type restoredMsg struct {
	ok  bool
	err error
}

// loginMsg carries the outcome of a password submit.
type loginMsg struct {
	err error
}

// logoutMsg carries the outcome of a logout.
type logoutMsg struct {
	err error
}

// resultMsg carries the outcome of any other dashboard call.
type resultMsg struct {
	err error
}

// Model drives a dashboard.App from key presses. Blocking App calls run in
// commands; the model re-reads the snapshot when they return and whenever
// the Bridge reports an event.
type Model struct {
	ctx    context.Context
	app    *dashboard.App
	bridge *Bridge
	render *output.Renderer

	snap   dashboard.Snapshot
	state  BridgeState
	mode   mode
	input  string
	notice string
	cursor int

	width  int
	height int
}

func NewModel(ctx context.Context, app *dashboard.App, bridge *Bridge, render *output.Renderer) Model {
	m := Model{
		ctx:    ctx,
		app:    app,
		bridge: bridge,
		render: render,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.restore, m.bridge.Wait())
}

func (m Model) restore() tea.Msg {
	ok, err := m.app.Restore(m.ctx)
	return restoredMsg{ok: ok, err: err}
}

func (m *Model) refresh() {
	m.snap = m.app.Snapshot()
	m.state = m.bridge.State()
	if m.state.AuthRequired && m.mode != modePassword {
		m.mode = modePassword
		m.input = ""
	}
	if s := m.snap.Services; s != nil {
		m.cursor = min(m.cursor, max(len(s.Items)-1, 0))
	} else {
		m.cursor = 0
	}
}

func (m *Model) setErr(err error) {
	switch {
	case err == nil:
	case api.IsAuthError(err):
		m.notice = dashboard.AuthFailureMessage
	default:
		m.notice = err.Error()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.refresh()
		return m, m.bridge.Wait()

	case restoredMsg:
		m.refresh()
		if !msg.ok {
			m.mode = modePassword
		}
		m.setErr(msg.err)
		return m, nil

	case loginMsg:
		if msg.err != nil {
			m.setErr(msg.err)
			if !m.app.Snapshot().Authenticated {
				m.refresh()
				return m, nil
			}
		}
		m.bridge.Authenticated()
		m.mode = modeBrowse
		m.refresh()
		return m, nil

	case logoutMsg:
		m.setErr(msg.err)
		m.mode = modePassword
		m.input = ""
		m.cursor = 0
		m.refresh()
		return m, nil

	case resultMsg:
		m.setErr(msg.err)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.notice = ""
		switch m.mode {
		case modePassword:
			return m.updatePassword(msg)
		case modeRange:
			return m.updateRange(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

// editInput applies a key to the input line. It reports whether the key
// was consumed.
func (m *Model) editInput(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
		if msg.Type == tea.KeySpace && len(msg.Runes) == 0 {
			m.input += " "
		}
		return true
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return true
	}
	return false
}

func (m Model) updatePassword(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editInput(msg) {
		return m, nil
	}
	if msg.Type != tea.KeyEnter {
		return m, nil
	}
	password := m.input
	m.input = ""
	app, ctx := m.app, m.ctx
	return m, func() tea.Msg {
		return loginMsg{err: app.Login(ctx, password)}
	}
}

func (m Model) updateRange(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editInput(msg) {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input = ""
	case tea.KeyEnter:
		from, to := splitRange(m.input)
		m.mode = modeBrowse
		m.input = ""
		// A manual edit goes through the debounce.
		m.setErr(m.app.SetRange(from, to))
		m.refresh()
	}
	return m, nil
}

// splitRange reads "FROM TO". A single date is the start, unless it follows
// a leading dash or "..", which makes it the end.
func splitRange(s string) (string, string) {
	s = strings.TrimSpace(s)
	openStart := strings.HasPrefix(s, "–") || strings.HasPrefix(s, "—") || strings.HasPrefix(s, "..")
	fields := strings.Fields(strings.NewReplacer("–", " ", "—", " ", "..", " ").Replace(s))
	switch {
	case len(fields) == 0:
		return "", ""
	case len(fields) == 1 && openStart:
		return "", fields[0]
	case len(fields) == 1:
		return fields[0], ""
	}
	return fields[0], fields[1]
}

func (m Model) call(f func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{err: f(ctx)}
	}
}

func statusErr(_ dashboard.Status, err error) error {
	return err
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	app := m.app
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "tab":
		next := core.SectionServices
		if m.snap.Section == core.SectionServices {
			next = core.SectionRevenue
		}
		return m, m.call(func(ctx context.Context) error {
			return statusErr(app.SwitchSection(ctx, next))
		})

	case "p":
		return m, m.call(func(ctx context.Context) error {
			return app.ApplyPreset(ctx, dashboard.PresetCurrentMonth)
		})
	case "P":
		return m, m.call(func(ctx context.Context) error {
			return app.ApplyPreset(ctx, dashboard.PresetPreviousMonth)
		})
	case "r":
		return m, m.call(app.ResetFilters)

	case "f":
		m.mode = modeRange
		m.input = strings.TrimSpace(m.snap.Range.From + " " + m.snap.Range.To)
		return m, nil

	case "d":
		field := core.DateFieldCheckin
		if app.DateField() == core.DateFieldCheckin {
			field = core.DateFieldCreated
		}
		app.SetDateField(field)
		section, focus := m.snap.Section, m.snap.Focus
		return m, m.call(func(ctx context.Context) error {
			var errs []error
			errs = append(errs, statusErr(app.FetchRevenue(ctx)))
			if section == core.SectionServices {
				errs = append(errs, statusErr(app.FetchServices(ctx)))
			}
			if focus.Context == dashboard.ContextMetric {
				errs = append(errs, statusErr(app.RefreshMonthly(ctx)))
			}
			return errors.Join(errs...)
		})

	case "y":
		if !m.snap.Focus.Active() {
			return m, nil
		}
		rng := core.MonthlyRangeLast12
		if m.snap.Focus.Range == core.MonthlyRangeLast12 {
			rng = core.MonthlyRangeThisYear
		}
		return m, m.call(func(ctx context.Context) error {
			return statusErr(app.SetMonthlyRange(ctx, rng))
		})

	case "esc":
		app.ResetMonthly()
		m.refresh()
		return m, nil

	case "L":
		ctx := m.ctx
		return m, func() tea.Msg {
			return logoutMsg{err: app.Logout(ctx)}
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if s := m.snap.Services; s != nil && m.cursor < len(s.Items)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if m.snap.Section != core.SectionServices || m.snap.Services == nil || len(m.snap.Services.Items) == 0 {
			return m, nil
		}
		name := m.snap.Services.Items[m.cursor].Name()
		return m, m.call(func(ctx context.Context) error {
			return statusErr(app.SelectService(ctx, name))
		})
	}

	if m.snap.Section == core.SectionRevenue && msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		if n := int(msg.Runes[0] - '1'); n >= 0 && n < len(core.Metrics) {
			key := core.Metrics[n].Key
			return m, m.call(func(ctx context.Context) error {
				return statusErr(app.SelectMetric(ctx, key))
			})
		}
	}
	return m, nil
}
