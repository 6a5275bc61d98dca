package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value   string
	counter int64
	expires time.Time // zero means no expiry
}

// Memory implements Store with a mutex-guarded map. It serves as the
// development fallback when Redis is unreachable at boot and as the
// test double for the guard packages. Entries are reaped lazily on
// access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), Clock: time.Now}
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expires: m.deadline(ttl)}
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = entry{value: value, expires: m.deadline(ttl)}
	return true, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return m.render(e), true, nil
}

func (m *Memory) GetDel(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	delete(m.entries, key)
	return m.render(e), true, nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		e = entry{}
	}
	e.counter++
	e.expires = m.deadline(ttl)
	m.entries[key] = e
	return e.counter, nil
}

// live returns the entry for key if it exists and has not expired,
// removing it when the expiry has passed.
func (m *Memory) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && m.Clock().After(e.expires) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.Clock().Add(ttl)
}

// render mirrors Redis semantics: a key written by Incr reads back as
// the decimal counter value.
func (m *Memory) render(e entry) string {
	if e.value == "" && e.counter > 0 {
		return strconv.FormatInt(e.counter, 10)
	}
	return e.value
}
