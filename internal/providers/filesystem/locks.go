package filesystem

import (
	"context"
	"sync"
)

// LockTable hands out advisory locks keyed by canonical path. Entries are
// created on first use and dropped once no holder or waiter references
// them, so the table only ever holds paths with in-flight mutations.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	// observe, when set, receives the table size after every change.
	observe func(int)
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[string]*lockEntry)}
}

// Observe registers a callback fed with the live entry count.
func (t *LockTable) Observe(fn func(int)) {
	t.mu.Lock()
	t.observe = fn
	t.mu.Unlock()
}

// Acquire blocks until key is free or ctx is done. The returned release
// func is idempotent.
func (t *LockTable) Acquire(ctx context.Context, key string) (func(), error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		t.entries[key] = e
	}
	e.refs++
	t.notifyLocked()
	t.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		t.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			t.unref(key, e)
		})
	}, nil
}

// Len returns the number of live entries.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *LockTable) unref(key string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
	t.notifyLocked()
}

func (t *LockTable) notifyLocked() {
	if t.observe != nil {
		t.observe(len(t.entries))
	}
}
