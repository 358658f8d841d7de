// Package channel carries a citation bundle from the process that built it to
// a freshly started viewer.
//
// Small bundles travel inline inside the navigation address. Larger ones are
// published under a time-ordered key to up to three independent paths: a
// durable store shared between processes, a volatile store, and a weak
// in-process reference held for the originating process. The viewer retrieves
// the bundle once; every path forgets it afterwards.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/logger"
)

const (
	DefaultRetention   = time.Hour
	DefaultInlineLimit = 1500
)

var (
	// ErrNotFound is returned when no path holds a live entry for a handle.
	ErrNotFound = errors.New("channel: entry not found")
	// ErrHandleRequired is returned when a bundle is too large to inline and
	// no handle was supplied.
	ErrHandleRequired = errors.New("channel: bundle too large to inline and no handle given")
	// ErrNoPath is returned when every delivery path rejected an entry.
	ErrNoPath = errors.New("channel: no delivery path accepted the entry")
	// ErrBadTarget is returned for navigation addresses that cannot be decoded.
	ErrBadTarget = errors.New("channel: malformed navigation target")
)

// Entry is one published bundle.
type Entry struct {
	Key        string
	DocumentID string
	Payload    []byte
	CreatedAt  time.Time
}

// Store is one delivery path. Take must be consume-once: a second Take of the
// same key returns ErrNotFound. Sweep deletes entries created before cutoff
// and is idempotent.
type Store interface {
	Name() string
	Put(ctx context.Context, entry Entry) error
	Take(ctx context.Context, key string) (Entry, error)
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Handle names a published entry. A handle returned by Publish also pins the
// entry so the weak in-process path stays resolvable while the handle is held.
type Handle struct {
	Key string
	pin *Entry
}

// ParseHandle validates a key read from a navigation address.
func ParseHandle(key string) (Handle, error) {
	if _, err := ksuid.Parse(key); err != nil {
		return Handle{}, fmt.Errorf("%w: handle %q: %v", ErrBadTarget, key, err)
	}
	return Handle{Key: key}, nil
}

// IsZero reports whether h names nothing.
func (h Handle) IsZero() bool {
	return h.Key == ""
}

// CreatedAt returns the publish time embedded in the key.
func (h Handle) CreatedAt() time.Time {
	id, err := ksuid.Parse(h.Key)
	if err != nil {
		return time.Time{}
	}
	return id.Time()
}

func (h Handle) String() string {
	return h.Key
}

// Options configure a Channel. Any path may be nil; at least one should be set
// for Publish to succeed.
type Options struct {
	Durable     Store
	Volatile    Store
	Opener      *Opener
	Retention   time.Duration
	InlineLimit int
	Clock       func() time.Time
	Logger      logger.Logger
}

// Channel publishes and retrieves bundles.
type Channel struct {
	durable     Store
	volatile    Store
	opener      *Opener
	retention   time.Duration
	inlineLimit int
	now         func() time.Time
	log         logger.Logger

	// retrieveMu serializes retrievals so one process cannot win the same
	// handle twice through different paths.
	retrieveMu sync.Mutex
}

// New returns a Channel configured by opts.
func New(opts Options) *Channel {
	c := &Channel{
		durable:     opts.Durable,
		volatile:    opts.Volatile,
		opener:      opts.Opener,
		retention:   opts.Retention,
		inlineLimit: opts.InlineLimit,
		now:         opts.Clock,
		log:         logger.Component(opts.Logger, "channel"),
	}
	if c.retention <= 0 {
		c.retention = DefaultRetention
	}
	if c.inlineLimit <= 0 {
		c.inlineLimit = DefaultInlineLimit
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// InlineLimit returns the largest payload, in bytes, carried inline.
func (c *Channel) InlineLimit() int {
	return c.inlineLimit
}

func (c *Channel) stores() []Store {
	stores := make([]Store, 0, 2)
	if c.durable != nil {
		stores = append(stores, c.durable)
	}
	if c.volatile != nil {
		stores = append(stores, c.volatile)
	}
	return stores
}

// Publish sweeps stale entries, then writes bundle to every configured path.
// It fails only when no path accepted the entry.
func (c *Channel) Publish(ctx context.Context, bundle citation.Bundle) (Handle, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return Handle{}, fmt.Errorf("encode bundle: %w", err)
	}
	return c.publish(ctx, bundle.DocumentID, payload)
}

func (c *Channel) publish(ctx context.Context, documentID string, payload []byte) (Handle, error) {
	if _, err := c.Sweep(ctx); err != nil {
		c.log.Warn("sweep before publish failed", "error", err)
	}

	now := c.now().UTC()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return Handle{}, fmt.Errorf("generate key: %w", err)
	}
	entry := &Entry{
		Key:        id.String(),
		DocumentID: documentID,
		Payload:    payload,
		CreatedAt:  now,
	}

	accepted := 0
	for _, store := range c.stores() {
		if err := store.Put(ctx, *entry); err != nil {
			c.log.Warn("store rejected entry", "store", store.Name(), "key", entry.Key, "error", err)
			continue
		}
		accepted++
	}
	if c.opener != nil {
		c.opener.Hold(entry)
		accepted++
	}
	if accepted == 0 {
		return Handle{}, ErrNoPath
	}
	c.log.Debug("published", "key", entry.Key, "document", documentID, "bytes", len(payload), "paths", accepted)
	return Handle{Key: entry.Key, pin: entry}, nil
}

// Retrieve returns the bundle published under h and removes it from every
// path. Paths are consulted durable first, then volatile, then the opener.
// Store failures are logged and treated as misses.
func (c *Channel) Retrieve(ctx context.Context, h Handle) (citation.Bundle, error) {
	if h.IsZero() {
		return citation.Bundle{}, ErrNotFound
	}
	c.retrieveMu.Lock()
	defer c.retrieveMu.Unlock()

	var (
		hit   Entry
		found bool
		from  string
	)
	for _, store := range c.stores() {
		entry, err := store.Take(ctx, h.Key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				c.log.Warn("store read failed", "store", store.Name(), "key", h.Key, "error", err)
			}
			continue
		}
		if !found {
			hit, found, from = entry, true, store.Name()
		}
	}
	if c.opener != nil {
		if entry, ok := c.opener.Take(h.Key); ok && !found {
			hit, found, from = entry, true, "opener"
		}
	}
	if !found {
		return citation.Bundle{}, ErrNotFound
	}
	if c.now().Sub(hit.CreatedAt) > c.retention {
		c.log.Debug("discarding expired entry", "key", h.Key, "created", hit.CreatedAt)
		return citation.Bundle{}, ErrNotFound
	}

	var bundle citation.Bundle
	if err := json.Unmarshal(hit.Payload, &bundle); err != nil {
		return citation.Bundle{}, fmt.Errorf("decode entry %s: %w", h.Key, err)
	}
	c.log.Debug("retrieved", "key", h.Key, "path", from)
	return bundle, nil
}

// Sweep removes entries older than the retention window from every path and
// reports how many were deleted.
func (c *Channel) Sweep(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.retention)
	total := 0
	var errs []error
	for _, store := range c.stores() {
		n, err := store.Sweep(ctx, cutoff)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", store.Name(), err))
		}
	}
	if c.opener != nil {
		total += c.opener.Sweep(cutoff)
	}
	if total > 0 {
		c.log.Debug("swept stale entries", "count", total, "cutoff", cutoff)
	}
	return total, errors.Join(errs...)
}

// Deliver encodes bundle once and returns the navigation target for it,
// publishing only when the payload is too large to travel inline.
func (c *Channel) Deliver(ctx context.Context, filename string, bundle citation.Bundle) (Target, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return Target{}, fmt.Errorf("encode bundle: %w", err)
	}
	target := Target{File: filename, Active: bundle.ActiveDisplayIndex}
	if len(payload) < c.inlineLimit {
		b := bundle
		target.Bundle = &b
		return target, nil
	}
	handle, err := c.publish(ctx, bundle.DocumentID, payload)
	if err != nil {
		return Target{}, err
	}
	target.Handle = handle
	return target, nil
}

// BuildNavigationTarget returns the address a viewer opens: the bundle itself
// when it encodes under the inline limit, otherwise the handle.
func (c *Channel) BuildNavigationTarget(filename string, bundle citation.Bundle, handle Handle) (string, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}
	target := Target{File: filename, Active: bundle.ActiveDisplayIndex}
	if len(payload) < c.inlineLimit {
		target.Bundle = &bundle
		return target.Encode()
	}
	if handle.IsZero() {
		return "", ErrHandleRequired
	}
	target.Handle = handle
	return target.Encode()
}
