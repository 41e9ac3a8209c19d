package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/ui"
	"github.com/urfave/cli/v3"
)

const watchLogFile = "./tmp/scrob-watch.log"

// Watch runs the daemon with the status monitor attached. Quitting the monitor stops the daemon.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	path := r.config.Log.File
	if path == "" {
		path = watchLogFile
	}
	fileLogger, err := shared.NewFileLogger(filepath.Clean(path), r.config.Log)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	return r.serve(ctx, func(ctx context.Context) error {
		model := ui.NewModel(r.engine, r.queue, r.events, cmd.Duration("refresh"))
		p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
}
