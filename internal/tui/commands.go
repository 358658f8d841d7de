package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/viewer"
)

const (
	openTimeout   = 30 * time.Second
	bundleTimeout = 10 * time.Second
	pageTimeout   = 20 * time.Second
)

func openDocumentJob(open func(string) (Document, error), path string) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		if err := parent.Err(); err != nil {
			return documentResultMsg{err: err}, err
		}
		doc, err := open(path)
		return documentResultMsg{doc: doc, err: err}, err
	}
}

func fetchBundleJob(r viewer.Retriever, target channel.Target) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, bundleTimeout)
		defer cancel()
		bundle, err := viewer.FetchBundle(ctx, r, target)
		return bundleResultMsg{bundle: bundle, err: err}, err
	}
}

func loadPageJob(doc Document, req viewer.PageRequest) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, pageTimeout)
		defer cancel()
		res := viewer.Load(ctx, doc, req)
		return pageResultMsg{result: res}, res.Err
	}
}

func reloadDocumentJob(doc Document) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		if err := doc.Reload(); err != nil {
			return reloadResultMsg{err: err}, err
		}
		return reloadResultMsg{pageCount: doc.PageCount()}, nil
	}
}

// waitForChange blocks until the watcher reports a write. A closed channel
// ends the watch.
func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return documentChangedMsg{}
	}
}
