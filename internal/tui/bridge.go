// Package tui is the interactive terminal front end of the dashboard.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
)

// BridgeState is what the view needs beyond the dashboard snapshot.
type BridgeState struct {
	Message        string
	AuthRequired   bool
	MonthlyLoading bool
}

// changedMsg tells the model to re-read the dashboard.
type changedMsg struct{}

// Bridge is the dashboard observer of the TUI. Events arrive on fetch
// goroutines; Bridge folds them into BridgeState and wakes the program
// through a one-slot channel, so a burst of events costs one redraw.
type Bridge struct {
	mu    sync.Mutex
	state BridgeState

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *Bridge) Notify(e dashboard.Event) {
	b.mu.Lock()
	switch e.Kind {
	case dashboard.EventSectionError:
		if e.Err != nil {
			b.state.Message = sectionTitle(e.Section) + ": " + e.Err.Error()
		}
	case dashboard.EventRangeError:
		b.state.Message = e.Message
	case dashboard.EventRangeCleared:
		b.state.Message = ""
	case dashboard.EventAuthRequired:
		b.state.AuthRequired = true
		b.state.MonthlyLoading = false
		b.state.Message = e.Message
	case dashboard.EventMonthlyLoading:
		b.state.MonthlyLoading = true
	case dashboard.EventMonthly, dashboard.EventMonthlyReset:
		b.state.MonthlyLoading = false
	}
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// State returns a copy of the folded state.
func (b *Bridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Authenticated clears the auth prompt after a login.
func (b *Bridge) Authenticated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.AuthRequired = false
	b.state.Message = ""
}

// Wait returns a command that blocks until the next event. After Close it
// returns nil.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.signal:
			return changedMsg{}
		case <-b.done:
			return nil
		}
	}
}

// Close releases a pending Wait.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func sectionTitle(section string) string {
	switch section {
	case core.SectionRevenue:
		return "Выручка"
	case core.SectionServices:
		return "Услуги"
	case core.SectionMonthly:
		return "По месяцам"
	}
	return section
}
