package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BusyError reports tables already being synced by another caller.
type BusyError struct {
	Tables []string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("sync already in progress for %s", strings.Join(e.Tables, ", "))
}

// TableLocks is a keyed try-lock shared by the scheduler and manual triggers.
type TableLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewTableLocks creates an empty lock set.
func NewTableLocks() *TableLocks {
	return &TableLocks{held: make(map[string]bool)}
}

// TryLock takes every table or none. On success release frees them; on
// failure busy lists the tables held elsewhere.
func (l *TableLocks) TryLock(tables ...string) (release func(), busy []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range tables {
		if l.held[t] {
			busy = append(busy, t)
		}
	}
	if len(busy) > 0 {
		sort.Strings(busy)
		return nil, busy
	}
	for _, t := range tables {
		l.held[t] = true
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, t := range tables {
				delete(l.held, t)
			}
		})
	}, nil
}

// Held lists the tables currently locked, sorted.
func (l *TableLocks) Held() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.held))
	for t := range l.held {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
