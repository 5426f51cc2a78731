package lock

import (
	"context"
	"sync"
)

// Memory is an in-process Locker. Entries are reference counted and dropped
// once nobody holds or waits for them.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	sem  chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memoryLock)}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &memoryLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.release(key, l)
		})
	}, nil
}

func (m *Memory) release(key string, l *memoryLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
