package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/config"
	"github.com/csheth/citejump/internal/match"
	"github.com/csheth/citejump/internal/tui"
	"github.com/csheth/citejump/internal/viewer"
)

func newViewCmd(a *app) *cobra.Command {
	var noAltScreen bool
	cmd := &cobra.Command{
		Use:         "view ADDRESS",
		Short:       "Show a document with the addressed citation highlighted",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{logsAnnotation: "file"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := channel.ParseTarget(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.runViewer(ctx, a.channel(ctx), target, noAltScreen)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")
	flags.Int("page-offset", 0, "added to every cited page number")
	flags.Float64("zoom", viewer.DefaultZoom, "initial zoom")
	flags.String("log-file", "", "where the viewer writes its logs")
	_ = config.FlagKey(flags, "page-offset", "viewer.page_offset")
	_ = config.FlagKey(flags, "zoom", "viewer.zoom")
	_ = config.FlagKey(flags, "log-file", "log.file")
	return cmd
}

// runViewer runs the viewer program until the user quits.
func (a *app) runViewer(ctx context.Context, r viewer.Retriever, target channel.Target, noAltScreen bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	open := func(ref string) (tui.Document, error) {
		doc, err := a.openDocument(ctx, ref)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}

	model := tui.New(tui.Config{
		Target:       target,
		Retriever:    r,
		OpenDocument: open,
		Viewer: viewer.Options{
			Matcher:    match.New(a.cfg.MatcherOptions()),
			PageOffset: a.cfg.Viewer.PageOffset,
			Zoom:       a.cfg.Viewer.Zoom,
			Logger:     a.log,
		},
		Watch:   true,
		Context: ctx,
		Logger:  a.log,
	})

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if !noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}
