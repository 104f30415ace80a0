// Package ledger keeps track of the instances that still owe a termination request,
// so that they can be terminated even if the process that launched them dies.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Entry struct {
	InstanceID     string    `json:"instanceId"`
	RequestID      string    `json:"requestId"`
	Owner          string    `json:"owner"`
	LaunchedAt     time.Time `json:"launchedAt"`
	TerminateAfter time.Time `json:"terminateAfter"`
}

// Overdue reports whether the entry should have been terminated by now.
func (e Entry) Overdue(now time.Time) bool {
	return !now.Before(e.TerminateAfter)
}

type Store interface {
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, instanceID string) error
	List(ctx context.Context) ([]Entry, error)
}

// MemoryStore is a process-local Store. It does not survive restarts.
type MemoryStore struct {
	mtx     sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Put(_ context.Context, e Entry) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.entries[e.InstanceID] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, instanceID string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.entries, instanceID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	list := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TerminateAfter.Before(list[j].TerminateAfter) })
	return list, nil
}
