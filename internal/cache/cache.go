// Package cache provides a persistent read-through cache for market data lookups.
// Values are stored as msgpack blobs with expiration timestamps.
package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// TTL defaults
const (
	TTLMarketData = time.Hour
	TTLQuality    = 10 * time.Minute
)

// Store provides cache operations over the cache database
type Store struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewStore creates a cache store over a migrated cache database
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "cache").Logger(),
	}
}

// Key joins parts into a cache key
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Set saves value with expiration = now + ttl.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value %s: %w", key, err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO cache_entries (key, data, expires_at) VALUES (?, ?, ?)",
		key, data, s.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	return nil
}

// Get decodes a fresh entry into dest. Returns false when the key is missing or expired.
func (s *Store) Get(key string, dest interface{}) (bool, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, s.now().Unix(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(data, dest); err != nil {
		// Undecodable entries are treated as misses and replaced on next Set
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false, nil
	}
	return true, nil
}

// Delete removes a single key
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix and returns the count
func (s *Store) DeletePrefix(prefix string) (int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	result, err := s.db.Exec(`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache prefix %s: %w", prefix, err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes all expired entries
func (s *Store) DeleteExpired() (int64, error) {
	result, err := s.db.Exec("DELETE FROM cache_entries WHERE expires_at <= ?", s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored entries, expired or not
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
