package catalog

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a read replaced by a newer one
// for the same slot.
var ErrSuperseded = errors.New("catalog: request superseded")

// Inflight tracks the latest read per (session, slot). Starting a new read
// cancels the previous one so a stale response never overwrites a newer one.
type Inflight struct {
	mu      sync.Mutex
	seq     uint64
	running map[string]inflightEntry
}

type inflightEntry struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// NewInflight constructs an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{running: make(map[string]inflightEntry)}
}

// Begin derives a cancellable context for key and supersedes any read still
// running under the same key. The returned func must be called when the read
// completes.
func (f *Inflight) Begin(ctx context.Context, key string) (context.Context, func()) {
	if f == nil || key == "" {
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancelCause(ctx)

	f.mu.Lock()
	f.seq++
	seq := f.seq
	if prev, ok := f.running[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	f.running[key] = inflightEntry{seq: seq, cancel: cancel}
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if cur, ok := f.running[key]; ok && cur.seq == seq {
			delete(f.running, key)
		}
		f.mu.Unlock()
		cancel(nil)
	}
}

// Len returns the number of reads currently tracked.
func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}
