package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/config"
	"github.com/csheth/citejump/internal/launch"
)

type openOptions struct {
	message     string
	origin      int
	document    string
	print       bool
	inProcess   bool
	noAltScreen bool
}

func newOpenCmd(a *app) *cobra.Command {
	opts := &openOptions{}
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the viewer on a clicked citation",
		Long: "Bundles every citation the answer makes into the clicked citation's document,\n" +
			"delivers the bundle and starts a viewer on it. Without --exec or --in-process\n" +
			"the navigation address is printed.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{logsAnnotation: "in-process"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.message, "message", "", "message file with the answer's citations, - for stdin")
	flags.IntVar(&opts.origin, "origin", 0, "origin index of the clicked citation")
	flags.StringVar(&opts.document, "document", "", "open this file instead of the citation's document id")
	flags.String("exec", "", "viewer command template, "+launch.Placeholder+" is replaced by the address")
	flags.BoolVar(&opts.print, "print", false, "print the address even when an exec template is configured")
	flags.BoolVar(&opts.inProcess, "in-process", false, "run the viewer in this terminal")
	flags.BoolVar(&opts.noAltScreen, "no-alt-screen", false, "with --in-process, do not use the alternate screen")
	_ = config.FlagKey(flags, "exec", "launch.exec")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("origin")
	cmd.MarkFlagsMutuallyExclusive("exec", "print", "in-process")
	return cmd
}

func (a *app) open(cmd *cobra.Command, opts *openOptions) error {
	ctx := cmd.Context()
	all, err := readMessage(cmd, opts.message)
	if err != nil {
		return err
	}
	clicked, ok := findOrigin(all, opts.origin)
	if !ok {
		return fmt.Errorf("no citation with origin index %d", opts.origin)
	}
	if opts.document != "" {
		all = retarget(all, clicked.DocumentID, opts.document)
		clicked.DocumentID = opts.document
	}

	ch := a.channel(ctx)
	launcher, err := launch.New(launch.Options{
		Channel: ch,
		Spawner: a.spawner(cmd, ch, opts),
		Logger:  a.log,
	})
	if err != nil {
		return err
	}
	_, err = launcher.OpenViewer(ctx, clicked, all)
	return err
}

// spawner picks how the viewer starts: in this process, through the exec
// template, or by printing the address for the caller.
func (a *app) spawner(cmd *cobra.Command, ch *channel.Channel, opts *openOptions) launch.Spawner {
	switch {
	case opts.inProcess:
		return launch.SpawnerFunc(func(ctx context.Context, address string) error {
			target, err := channel.ParseTarget(address)
			if err != nil {
				return err
			}
			return a.runViewer(ctx, ch, target, opts.noAltScreen)
		})
	case !opts.print && a.cfg.Launch.Exec != "":
		return launch.ExecSpawner{Template: a.cfg.Launch.Exec, Logger: a.log}
	default:
		return launch.PrintSpawner{W: cmd.OutOrStdout()}
	}
}

func readMessage(cmd *cobra.Command, path string) ([]citation.Citation, error) {
	if path == "-" {
		return citation.ReadMessage(cmd.InOrStdin())
	}
	return citation.LoadMessage(path)
}

func findOrigin(all []citation.Citation, origin int) (citation.Citation, bool) {
	for _, c := range all {
		if c.OriginIndex == origin {
			return c, true
		}
	}
	return citation.Citation{}, false
}

// retarget moves the citations of one document onto another file name.
func retarget(all []citation.Citation, from, to string) []citation.Citation {
	out := make([]citation.Citation, len(all))
	for i, c := range all {
		if c.DocumentID == from {
			c.DocumentID = to
		}
		out[i] = c
	}
	return out
}
