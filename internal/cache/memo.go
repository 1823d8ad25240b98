package cache

import (
	"sync"
	"time"

	"github.com/any-bin/any-bin/internal/keyspace"
)

// DefaultMetadataTTL 是远端修改时间的记忆窗口。
const DefaultMetadataTTL = 30 * time.Second

// metadataMemo 按 key 记忆远端修改时间，窗口内不再发起 PROPFIND。
type metadataMemo struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	modified time.Time
	expires  time.Time
}

func newMetadataMemo(ttl time.Duration, now func() time.Time) *metadataMemo {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	if now == nil {
		now = time.Now
	}
	return &metadataMemo{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoEntry),
	}
}

// Get 返回未过期的远端修改时间。
func (m *metadataMemo) Get(key string) (time.Time, bool) {
	key = keyspace.Normalize(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return time.Time{}, false
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return time.Time{}, false
	}
	return entry.modified, true
}

// Set 记录远端修改时间，从当前时刻起生效 ttl。
func (m *metadataMemo) Set(key string, modified time.Time) {
	key = keyspace.Normalize(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoEntry{
		modified: modified,
		expires:  m.now().Add(m.ttl),
	}
}

// Forget 丢弃 key 的记忆值。
func (m *metadataMemo) Forget(key string) {
	key = keyspace.Normalize(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len 返回当前记忆条目数（含已过期但未清理的条目）。
func (m *metadataMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
