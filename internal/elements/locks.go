package elements

import (
	"sort"
	"sync"
)

// sectionLocks gives each section a single writer. Multi-section callers lock
// in sorted id order so two cross-section moves cannot deadlock.
type sectionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSectionLocks() *sectionLocks {
	return &sectionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sectionLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// lock acquires every distinct id and returns the matching unlock.
func (l *sectionLocks) lock(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
