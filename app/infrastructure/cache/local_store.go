package cache

import (
	"sync"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e localEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LocalStore is the in-process fallback tier. Entries carry their own expiry;
// reads treat expired entries as misses and evict them on the spot.
type LocalStore struct {
	entries *lru.Cache[string, localEntry]

	// glob compilation is not free and invalidation patterns repeat
	patternsMu sync.Mutex
	patterns   map[string]glob.Glob
}

func NewLocalStore(maxEntries int) (*LocalStore, error) {
	if maxEntries <= 0 {
		maxEntries = defaultLocalMaxEntries
	}
	entries, err := lru.New[string, localEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LocalStore{
		entries:  entries,
		patterns: make(map[string]glob.Glob),
	}, nil
}

func (l *LocalStore) Get(key string, now time.Time) ([]byte, bool) {
	entry, ok := l.entries.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(now) {
		l.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores value until now+ttl. A non-positive ttl never expires.
func (l *LocalStore) Set(key string, value []byte, ttl time.Duration, now time.Time) {
	entry := localEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	l.entries.Add(key, entry)
}

func (l *LocalStore) Delete(key string) bool {
	return l.entries.Remove(key)
}

func (l *LocalStore) Exists(key string, now time.Time) bool {
	_, ok := l.Get(key, now)
	return ok
}

// Keys lists live keys matching a redis-style glob pattern.
func (l *LocalStore) Keys(pattern string, now time.Time) []string {
	g, err := l.compile(pattern)
	if err != nil {
		return nil
	}
	var keys []string
	for _, key := range l.entries.Keys() {
		entry, ok := l.entries.Peek(key)
		if !ok || entry.expired(now) {
			continue
		}
		if g.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// DeletePattern removes every key matching pattern, expired or not, and
// returns how many were removed.
func (l *LocalStore) DeletePattern(pattern string) int {
	g, err := l.compile(pattern)
	if err != nil {
		return 0
	}
	removed := 0
	for _, key := range l.entries.Keys() {
		if g.Match(key) && l.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Sweep evicts every entry whose expiry has passed.
func (l *LocalStore) Sweep(now time.Time) int {
	evicted := 0
	for _, key := range l.entries.Keys() {
		entry, ok := l.entries.Peek(key)
		if ok && entry.expired(now) && l.entries.Remove(key) {
			evicted++
		}
	}
	return evicted
}

func (l *LocalStore) Len() int {
	return l.entries.Len()
}

func (l *LocalStore) Purge() {
	l.entries.Purge()
}

func (l *LocalStore) compile(pattern string) (glob.Glob, error) {
	l.patternsMu.Lock()
	defer l.patternsMu.Unlock()
	if g, ok := l.patterns[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(l.patterns) >= maxCompiledPatterns {
		l.patterns = make(map[string]glob.Glob)
	}
	l.patterns[pattern] = g
	return g, nil
}
