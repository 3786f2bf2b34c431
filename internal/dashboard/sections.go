package dashboard

import (
	"context"
	"fmt"

	"github.com/u4s/turnover-cli/internal/core"
)

// SwitchSection makes section the visible one. Entering services drops the
// drill-down focus and refetches when the services data is stale and no
// fetch is already under way.
func (a *App) SwitchSection(ctx context.Context, section string) (Status, error) {
	if section != core.SectionRevenue && section != core.SectionServices {
		return StatusSkipped, fmt.Errorf("unknown section %q", section)
	}

	a.mu.Lock()
	if a.section == section {
		a.mu.Unlock()
		return StatusSkipped, nil
	}
	a.section = section
	a.mu.Unlock()

	a.notify(Event{Kind: EventSectionChanged, Section: section})

	if section == core.SectionRevenue {
		a.NotifyServicesCleared()
		return StatusSkipped, nil
	}

	a.ResetMonthly()
	if !a.auth.HasValidSession() || !a.ServicesDirty() {
		return StatusSkipped, nil
	}
	if a.Inflight(core.SectionServices) || a.timerPending(core.SectionServices) {
		return StatusSkipped, nil
	}
	return a.FetchServices(ctx)
}
