package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crossfade/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive transfer interface.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	sourceSvc, err := r.resolveService(cmd.String("source"))
	if err != nil {
		return err
	}
	destSvc, err := r.resolveService(cmd.String("dest"))
	if err != nil {
		return err
	}

	engine, closeEngine := r.newEngine()
	defer closeEngine()

	model := ui.NewModel(ctx, sourceSvc, destSvc, engine)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}
