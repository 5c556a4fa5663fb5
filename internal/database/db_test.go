package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func tableExists(t *testing.T, db *DB, table string) bool {
	t.Helper()

	var name string
	err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestNew_CreatesDirectoryAndDefaultsProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "market.db")

	db, err := New(Config{Path: path, Name: NameMarket})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, NameMarket, db.Name())
	assert.Equal(t, path, db.Path())
	assert.FileExists(t, path)
}

func TestMigrate_AllSchemas(t *testing.T) {
	expected := map[string][]string{
		NameMarket:    {"market_data", "data_quality_logs"},
		NameBacktests: {"backtest_results", "trades"},
		NameCache:     {"cache_entries"},
	}

	for name, tables := range expected {
		t.Run(name, func(t *testing.T) {
			db := newTestDB(t, name, ProfileStandard)
			require.NoError(t, db.Migrate())
			// Applying twice is a no-op
			require.NoError(t, db.Migrate())

			for _, table := range tables {
				assert.True(t, tableExists(t, db, table), "missing table %s", table)
			}
		})
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileCache)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	_, err := db.Conn().Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
		return n
	}

	t.Run("commit", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO t (v) VALUES (1)")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rollback on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO t (v) VALUES (2)")
			return sentinel
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, count())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO t (v) VALUES (3)")
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})

	t.Run("nil db", func(t *testing.T) {
		assert.Error(t, WithTransaction(nil, func(tx *sql.Tx) error { return nil }))
	})
}

func TestHealthChecks(t *testing.T) {
	db := newTestDB(t, NameMarket, ProfileStandard)
	require.NoError(t, db.Migrate())

	ctx := context.Background()
	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.HealthCheck(ctx))
}

func TestWALCheckpoint(t *testing.T) {
	db := newTestDB(t, NameCache, ProfileCache)

	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.Error(t, db.WALCheckpoint("DROP TABLE"))
}

func TestBackupTo(t *testing.T) {
	db := newTestDB(t, NameMarket, ProfileStandard)
	require.NoError(t, db.Migrate())

	_, err := db.Conn().Exec(`INSERT INTO market_data (ticker, date, open, high, low, close, adj_close, volume, created_at)
		VALUES ('AAPL', '2024-01-02', 1, 2, 0.5, 1.5, 1.5, 100, 0)`)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.BackupTo(context.Background(), dest))
	assert.FileExists(t, dest)

	// Refuses to overwrite
	assert.Error(t, db.BackupTo(context.Background(), dest))

	snapshot, err := New(Config{Path: dest, Name: NameMarket})
	require.NoError(t, err)
	defer snapshot.Close()

	var n int
	require.NoError(t, snapshot.Conn().QueryRow("SELECT COUNT(*) FROM market_data").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t, NameBacktests, ProfileStandard)
	require.NoError(t, db.Migrate())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}
