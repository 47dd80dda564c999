package blacklist

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local blacklist. Suitable for a single instance only:
// entries are lost on restart.
type Memory struct {
	entries sync.Map // digest -> *time.Timer
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := digest(token)
	placeholder := new(time.Timer)
	if _, loaded := m.entries.LoadOrStore(key, placeholder); loaded {
		return nil
	}
	timer := time.AfterFunc(ttl, func() {
		m.entries.Delete(key)
	})
	m.entries.CompareAndSwap(key, placeholder, timer)
	return nil
}

func (m *Memory) Contains(_ context.Context, token string) (bool, error) {
	_, ok := m.entries.Load(digest(token))
	return ok, nil
}

func (m *Memory) Backend() string { return BackendMemory }

// Len counts live entries.
func (m *Memory) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
