package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/match"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete published bundles older than the retention window",
		Long: "Delete published bundles older than the retention window from the shared\n" +
			"stores (the SQLite file and Redis). Bundles held in a viewer process's\n" +
			"memory are swept by that process on its next publish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := a.sharedPaths(ctx)
			if opts.Durable == nil && opts.Volatile == nil {
				return errors.New("no shared channel store configured")
			}
			removed, err := channel.New(opts).Sweep(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale entries\n", removed)
			return err
		},
	}
}

func newLocateCmd(a *app) *cobra.Command {
	var (
		file string
		page int
		text string
	)
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Show which fragments of a page a citation text matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			doc, err := a.openDocument(ctx, file)
			if err != nil {
				return err
			}
			defer doc.Close()

			frags, err := doc.PageFragments(ctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			region := match.New(a.cfg.MatcherOptions()).Locate(frags, text)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tier: %s\n", region.Tier)
			for _, i := range region.Indices {
				fmt.Fprintf(out, "%4d  %s\n", i, strings.TrimSpace(frags[i].Text))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&file, "file", "", "PDF to search")
	flags.IntVar(&page, "page", 1, "page number, starting at 1")
	flags.StringVar(&text, "text", "", "citation text")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newDocsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List the PDFs in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := document.List(a.cfg.DataDir)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%d\t%s\n", d.Name, d.Size, d.ModTime.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
