package cache

import (
	"database/sql"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

type SqliteConfig struct {
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes"`
}

const DefaultSqliteQuota = 8 << 20

// SqliteTier is the durable cache tier backed by a local sqlite file. It
// enforces a storage quota the way a browser origin store does: a write
// that would push total payload size past MaxBytes fails with
// ErrCacheQuotaExceeded instead of growing the file.
type SqliteTier struct {
	db      *sql.DB
	logger  types.Logger
	config  *SqliteConfig
	started int32
}

func NewSqliteTier(logger types.Logger, config interface{}) (types.DurableTier, error) {
	sqliteConfig := &SqliteConfig{
		Path:     "data/cache.db",
		MaxBytes: DefaultSqliteQuota,
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite tier config")
		}
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite cache file")
	}

	tier := &SqliteTier{
		db:     db,
		logger: logger,
		config: sqliteConfig,
	}

	if err := tier.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return tier, nil
}

func (s *SqliteTier) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`

	_, err := s.db.Exec(query)
	if err != nil {
		return types.WrapError(err, "failed to create cache table")
	}

	return nil
}

func (s *SqliteTier) Read(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM cache_entries WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if !types.IsError(err, sql.ErrNoRows) {
			s.logger.Error("Failed to read durable cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return payload, true
}

func (s *SqliteTier) Write(key string, payload []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if s.config.MaxBytes > 0 {
		var used sql.NullInt64
		err := s.db.QueryRow(`SELECT SUM(LENGTH(payload)) FROM cache_entries WHERE key != ?`, key).Scan(&used)
		if err != nil {
			return types.WrapError(err, "failed to measure cache usage")
		}

		if used.Int64+int64(len(payload)) > s.config.MaxBytes {
			return types.Errorf(types.ErrCacheQuotaExceeded,
				"sqlite tier at %d of %d bytes", used.Int64, s.config.MaxBytes)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO cache_entries (key, payload, updated_at) VALUES (?, ?, strftime('%s','now'))
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload)
	if err != nil {
		return types.WrapError(err, "failed to write durable cache entry")
	}

	return nil
}

func (s *SqliteTier) Delete(key string) error {
	if key == "" {
		return nil
	}

	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return types.WrapError(err, "failed to delete durable cache entry")
	}

	return nil
}

func (s *SqliteTier) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM cache_entries`)
	if err != nil {
		return nil, types.WrapError(err, "failed to list durable cache keys")
	}

	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan durable cache key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate durable cache keys")
	}

	return keys, nil
}

func (s *SqliteTier) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	s.logger.Info("Sqlite durable tier started", zap.String("path", s.config.Path))
	return nil
}

func (s *SqliteTier) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite cache file")
	}

	s.logger.Info("Sqlite durable tier stopped gracefully")
	return nil
}

func (s *SqliteTier) IsRunning() bool {
	return atomic.LoadInt32(&s.started) == 1
}
