package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
)

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#6b6d8a"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#86bada"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b6d8a"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#3b3d57")).Padding(0, 1)
)

const loadingText = "Загрузка…"

func (m Model) View() string {
	if m.mode == modePassword {
		return m.viewPassword()
	}

	var b strings.Builder
	b.WriteString(m.viewTabs())
	b.WriteString("\n")
	b.WriteString(m.viewFilter())
	b.WriteString("\n\n")

	switch m.snap.Section {
	case core.SectionServices:
		b.WriteString(m.viewServices())
	default:
		b.WriteString(m.viewRevenue())
	}

	if m.snap.Focus.Active() {
		b.WriteString("\n")
		b.WriteString(m.viewMonthly())
	}

	b.WriteString("\n")
	if msg := m.message(); msg != "" {
		b.WriteString(errorStyle.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(m.help()))
	return b.String()
}

func (m Model) message() string {
	if m.notice != "" {
		return m.notice
	}
	return m.state.Message
}

func (m Model) viewPassword() string {
	var b strings.Builder
	b.WriteString(activeTabStyle.Render("Turnover"))
	b.WriteString("\n\n")
	if msg := m.message(); msg != "" {
		b.WriteString(errorStyle.Render(msg))
		b.WriteString("\n")
	}
	b.WriteString("Пароль: ")
	b.WriteString(strings.Repeat("•", len([]rune(m.input))))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("enter: войти · ctrl+c: выход"))
	return b.String()
}

func (m Model) viewTabs() string {
	tabs := make([]string, 0, 2)
	for _, section := range []string{core.SectionRevenue, core.SectionServices} {
		style := tabStyle
		if section == m.snap.Section {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(sectionTitle(section)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) viewFilter() string {
	if m.mode == modeRange {
		return "Период: " + m.input + "▏" + dimStyle.Render("  (ГГГГ-ММ-ДД ГГГГ-ММ-ДД, enter/esc)")
	}
	rng := m.snap.Range
	line := fmt.Sprintf("Период: %s – %s", orDash(rng.From), orDash(rng.To))
	switch m.snap.Preset {
	case dashboard.PresetCurrentMonth:
		line += dimStyle.Render("  текущий месяц")
	case dashboard.PresetPreviousMonth:
		line += dimStyle.Render("  прошлый месяц")
	}
	line += dimStyle.Render("  · дата: " + dateFieldLabel(m.app.DateField()))
	return line
}

func (m Model) viewRevenue() string {
	if m.snap.Metrics == nil {
		return dimStyle.Render(loadingText) + "\n"
	}
	active := ""
	if m.snap.Focus.Context == dashboard.ContextMetric {
		active = m.snap.Focus.Key
	}
	return m.render.Metrics(*m.snap.Metrics, active)
}

func (m Model) viewServices() string {
	if m.snap.Services == nil {
		return dimStyle.Render(loadingText) + "\n"
	}
	active := ""
	if items := m.snap.Services.Items; len(items) > 0 {
		active = items[m.cursor].Name()
	}
	return m.render.Services(*m.snap.Services, active)
}

func (m Model) viewMonthly() string {
	if m.state.MonthlyLoading || m.snap.Monthly == nil {
		return panelStyle.Render(dimStyle.Render(loadingText))
	}
	metric := ""
	if m.snap.Focus.Context == dashboard.ContextMetric {
		metric = m.snap.Focus.Key
	}
	return panelStyle.Render(strings.TrimRight(m.render.Monthly(*m.snap.Monthly, metric), "\n"))
}

func (m Model) help() string {
	keys := []string{"tab: раздел", "p/P: месяц", "r: сброс", "f: период", "d: дата"}
	if m.snap.Section == core.SectionServices {
		keys = append(keys, "↑/↓ enter: услуга")
	} else {
		keys = append(keys, "1-9: показатель")
	}
	if m.snap.Focus.Active() {
		keys = append(keys, "y: диапазон", "esc: свернуть")
	}
	keys = append(keys, "L: выход из аккаунта", "q: выход")
	return strings.Join(keys, " · ")
}

func dateFieldLabel(field string) string {
	if field == core.DateFieldCheckin {
		return "заезд"
	}
	return "создание"
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
