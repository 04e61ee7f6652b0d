package service

import (
	"context"
	"sort"
	"sync"
)

// itemLocks serializes commit attempts per catalog item. Each item id maps to
// a one-slot channel acting as its exclusive critical section; a commit holds
// every affected item's section across re-validation and reservation.
type itemLocks struct {
	mu    sync.Mutex
	items map[string]chan struct{}
}

func newItemLocks() *itemLocks {
	return &itemLocks{items: make(map[string]chan struct{})}
}

func (l *itemLocks) sectionFor(itemID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.items[itemID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.items[itemID] = ch
	}
	return ch
}

// acquire takes the critical sections of every given item in sorted id order,
// so two commits touching overlapping item sets can never deadlock. If the
// context expires before all sections are held, everything already held is
// released and ErrBusy is returned.
func (l *itemLocks) acquire(ctx context.Context, itemIDs []string) (release func(), err error) {
	sorted := make([]string, 0, len(itemIDs))
	seen := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	var held []chan struct{}
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range sorted {
		ch := l.sectionFor(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ErrBusy
		}
	}
	return release, nil
}
