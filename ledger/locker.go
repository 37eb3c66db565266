package ledger

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes mutations per balance key. Lock blocks until every key is
// held or ctx ends, and returns a function releasing them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// sortedKeys dedupes keys and fixes the acquisition order so multi-key
// callers cannot deadlock each other.
func sortedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocalLocker is an in-process keyed mutex. Idle keys are dropped so the map
// does not grow with the product catalogue.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*lockSlot{}}
}

func (l *LocalLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot := l.slots[key]
	if slot == nil {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, slot)
		return ctx.Err()
	}
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	l.mu.Unlock()
	if slot == nil {
		return
	}
	<-slot.ch
	l.drop(key, slot)
}

func (l *LocalLocker) drop(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := sortedKeys(keys)
	held := make([]string, 0, len(ordered))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
	for _, key := range ordered {
		if err := l.acquire(ctx, key); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, key)
	}
	return unlock, nil
}
