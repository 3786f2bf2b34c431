package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/u4s/turnover-cli/internal/dashboard"
	"github.com/u4s/turnover-cli/internal/output"
)

// Run shows the dashboard until the user quits or ctx is done. bridge must
// be the Observer app was created with.
func Run(ctx context.Context, app *dashboard.App, bridge *Bridge, render *output.Renderer) error {
	defer bridge.Close()

	p := tea.NewProgram(NewModel(ctx, app, bridge, render), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
