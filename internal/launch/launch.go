// Package launch opens a viewer for a clicked citation.
package launch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/logger"
)

// DefaultKeep is how many published targets a Launcher pins.
const DefaultKeep = 16

// ErrNoChannel is returned when a Launcher has nothing to deliver through.
var ErrNoChannel = errors.New("launch: channel is required")

// Spawner starts a viewer on a navigation address.
type Spawner interface {
	Spawn(ctx context.Context, address string) error
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, address string) error

func (f SpawnerFunc) Spawn(ctx context.Context, address string) error {
	return f(ctx, address)
}

type Options struct {
	Channel *channel.Channel
	Spawner Spawner
	// Keep bounds the published targets held while their viewers start.
	Keep   int
	Logger logger.Logger
}

// Launcher builds, delivers and spawns.
type Launcher struct {
	channel *channel.Channel
	spawner Spawner
	keep    int
	log     logger.Logger

	mu   sync.Mutex
	held []channel.Target
}

func New(opts Options) (*Launcher, error) {
	if opts.Channel == nil {
		return nil, ErrNoChannel
	}
	if opts.Spawner == nil {
		opts.Spawner = SpawnerFunc(func(context.Context, string) error { return nil })
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	return &Launcher{
		channel: opts.Channel,
		spawner: opts.Spawner,
		keep:    opts.Keep,
		log:     logger.Component(opts.Logger, "launch"),
	}, nil
}

// OpenViewer bundles every citation of the clicked citation's document,
// delivers the bundle and starts a viewer on the resulting address, which is
// returned.
func (l *Launcher) OpenViewer(ctx context.Context, clicked citation.Citation, all []citation.Citation) (string, error) {
	bundle := citation.Build(all, clicked.DocumentID, clicked.OriginIndex)
	if bundle.Len() == 0 {
		// The clicked citation may be missing from all.
		bundle = citation.Build([]citation.Citation{clicked}, clicked.DocumentID, clicked.OriginIndex)
	}
	target, err := l.channel.Deliver(ctx, clicked.DocumentID, bundle)
	if err != nil {
		return "", fmt.Errorf("deliver bundle: %w", err)
	}
	if !target.Inline() {
		l.hold(target)
	}
	address, err := target.Encode()
	if err != nil {
		return "", err
	}
	l.log.Info("opening viewer",
		"document", clicked.DocumentID,
		"citations", bundle.Len(),
		"active", bundle.ActiveDisplayIndex,
		"inline", target.Inline(),
	)
	if err := l.spawner.Spawn(ctx, address); err != nil {
		return address, fmt.Errorf("spawn viewer: %w", err)
	}
	return address, nil
}

// hold keeps the target, and with it the entry's opener reference, alive.
func (l *Launcher) hold(target channel.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = append(l.held, target)
	if over := len(l.held) - l.keep; over > 0 {
		clear(l.held[:over])
		l.held = l.held[over:]
	}
}

// Held returns the number of pinned targets.
func (l *Launcher) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
