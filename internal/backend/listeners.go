package backend

import (
	"slices"
	"sync"
)

// Listeners is a registry adapters use to fan session events out. Emit
// delivers events one at a time so listeners observe the order in which the
// adapter confirmed them.
type Listeners struct {
	mu     sync.Mutex
	emitMu sync.Mutex
	nextID int
	items  map[int]SessionListener
}

// Add registers listener and returns its removal function.
func (l *Listeners) Add(listener SessionListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.items == nil {
		l.items = make(map[int]SessionListener)
	}
	l.nextID++
	key := l.nextID
	l.items[key] = listener
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.items, key)
	}
}

// Emit calls every registered listener with evt, in registration order.
func (l *Listeners) Emit(evt SessionEvent) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	l.mu.Lock()
	keys := make([]int, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}
	snapshot := make(map[int]SessionListener, len(l.items))
	for k, v := range l.items {
		snapshot[k] = v
	}
	l.mu.Unlock()

	slices.Sort(keys)
	for _, k := range keys {
		snapshot[k](evt)
	}
}
