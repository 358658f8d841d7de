package tui

import (
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/viewer"
)

// Document is what the viewer needs from an open PDF.
type Document interface {
	viewer.Source
	Name() string
	Path() string
	Reload() error
	Close() error
}

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	minSidebarWidth           = 24
	maxSidebarWidth           = 40
	chromeHeight              = 6
	minViewportHeight         = 5
	previewLines              = 3
	zoomStep                  = 0.25
)

const loadingMessage = "Opening document…"

type documentResultMsg struct {
	doc Document
	err error
}

type bundleResultMsg struct {
	bundle citation.Bundle
	err    error
}

type pageResultMsg struct {
	result viewer.PageResult
}

type reloadResultMsg struct {
	pageCount int
	err       error
}

type documentChangedMsg struct{}
