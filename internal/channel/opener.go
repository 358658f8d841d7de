package channel

import (
	"sync"
	"time"
	"weak"
)

// Opener is the originating process's weak view of the entries it published.
// It never keeps an entry alive: whoever holds the Handle returned by Publish
// owns it, and once that handle is dropped the entry may vanish here.
type Opener struct {
	mu      sync.Mutex
	entries map[string]weakEntry
}

type weakEntry struct {
	ptr       weak.Pointer[Entry]
	createdAt time.Time
}

func NewOpener() *Opener {
	return &Opener{entries: make(map[string]weakEntry)}
}

// Hold records a weak reference to entry.
func (o *Opener) Hold(entry *Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[entry.Key] = weakEntry{ptr: weak.Make(entry), createdAt: entry.CreatedAt}
}

// Take returns the entry for key at most once.
func (o *Opener) Take(key string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ref, ok := o.entries[key]
	if !ok {
		return Entry{}, false
	}
	delete(o.entries, key)
	entry := ref.ptr.Value()
	if entry == nil {
		return Entry{}, false
	}
	return *entry, true
}

// Sweep forgets references created before cutoff and any whose entry has
// already been collected.
func (o *Opener) Sweep(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for key, ref := range o.entries {
		if ref.createdAt.Before(cutoff) || ref.ptr.Value() == nil {
			delete(o.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports how many references are tracked.
func (o *Opener) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
