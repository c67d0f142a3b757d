package cache

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent serialized response envelopes.
// It also keeps track of expiration times of cache entries.
// Operating on key prefixes is important in order for many clients
// to be able to share the same cache and still enforce their own memory limits.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cache entry for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// If the cache entry has expired, the boolean should be false.
	// (In this case, the cache provider should also purge the entry.)
	Get(key string) (CacheEntry, bool, error)
	// Put stores the given entry in the cache, replacing any entry with the same key.
	Put(entry CacheEntry) error
	// Keys calls the given callback for each key with the given prefix,
	// along with the approximate memory size of the entry.
	Keys(prefix string, cb func(key string, size int64)) error
	// Purge removes the cache entry for the given key.
	Purge(key string) error
	// Ping reports whether the backing store is usable.
	Ping() error
}

// CacheEntry is a single stored value.
// A zero Expires means the entry never expires.
type CacheEntry struct {
	Key      string
	Expires  time.Time
	StoredAt time.Time
	Bytes    []byte
}

// Expired reports whether the entry is past its expiration time at t.
func (e CacheEntry) Expired(t time.Time) bool {
	return !e.Expires.IsZero() && t.After(e.Expires)
}

// Size is the approximate memory footprint of the entry.
func (e CacheEntry) Size() int64 {
	return int64(len(e.Key) + len(e.Bytes))
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]CacheEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]CacheEntry),
	}
}

func (m MemCache) Get(key string) (CacheEntry, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return CacheEntry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		delete(m.db, key)
		return CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (m MemCache) Put(entry CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[entry.Key] = entry
	return nil
}

func (m MemCache) Keys(prefix string, cb func(string, int64)) error {
	m.mutex.RLock()
	entries := make([]CacheEntry, 0, len(m.db))
	for key, entry := range m.db {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, entry)
		}
	}
	m.mutex.RUnlock()
	// callbacks run unlocked so they may call back into the cache
	for _, entry := range entries {
		cb(entry.Key, entry.Size())
	}
	return nil
}

func (m MemCache) Purge(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m MemCache) Ping() error {
	if m.db == nil {
		return errors.New("memory cache not initialized")
	}
	return nil
}

// SQLiteCache stores entries in a SQLite database.
// A database file can be shared by several processes on the same host.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			stored_at INTEGER,
			bytes BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteCache) Get(key string) (CacheEntry, bool, error) {
	entry := CacheEntry{Key: key}
	var expires, storedAt int64
	err := s.db.QueryRow("SELECT expires, stored_at, bytes FROM cache WHERE key = ?", key).
		Scan(&expires, &storedAt, &entry.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	} else if err != nil {
		return CacheEntry{}, false, err
	}
	entry.Expires = fromUnixMilli(expires)
	entry.StoredAt = fromUnixMilli(storedAt)
	if entry.Expired(time.Now()) {
		return CacheEntry{}, false, s.Purge(key)
	}
	return entry, true, nil
}

func (s SQLiteCache) Put(entry CacheEntry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO cache (key, expires, stored_at, bytes) VALUES (?, ?, ?, ?)",
		entry.Key, toUnixMilli(entry.Expires), toUnixMilli(entry.StoredAt), entry.Bytes)
	return err
}

func (s SQLiteCache) Keys(prefix string, cb func(string, int64)) error {
	query := "SELECT key, length(key) + coalesce(length(bytes), 0) FROM cache"
	args := []any{}
	if prefix != "" {
		// instr instead of LIKE, so that % and _ in the prefix are matched literally
		query += " WHERE instr(key, ?) = 1"
		args = append(args, prefix)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			return err
		}
		cb(key, size)
	}
	return rows.Err()
}

func (s SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s SQLiteCache) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database.
func (s SQLiteCache) Close() error {
	return s.db.Close()
}

// zero times are stored as 0
func toUnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
