package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bnpl/internal/services"
	"bnpl/internal/sound"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the record database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteRecords is the RecordStore backed by a single SQLite file. Each row
// holds the flattened search document and the round-trip sound map.
type SQLiteRecords struct {
	db     *sql.DB
	path   string
	naming sound.Naming
}

// OpenSQLite opens or creates the record database at path.
func OpenSQLite(path string, naming sound.Naming) (*SQLiteRecords, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "records", "open", "records path not set", nil)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create records directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteRecords{db: db, path: path, naming: naming}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteRecords) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteRecords) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteRecords) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteRecords) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const upsertSQL = `INSERT INTO sounds (uid, path, format, slug, url, document, sound, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uid) DO UPDATE SET
    path = excluded.path,
    format = excluded.format,
    slug = excluded.slug,
    url = excluded.url,
    document = excluded.document,
    sound = excluded.sound,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteRecords) Put(ctx context.Context, snd *sound.Sound) error {
	args, err := s.rowArgs(snd)
	if err != nil {
		return err
	}
	return retryOnBusy(ctx, func() error {
		return upsert(ctx, s.db, args)
	})
}

func (s *SQLiteRecords) Bulk(ctx context.Context, sounds []*sound.Sound) error {
	rows := make([][]any, 0, len(sounds))
	for _, snd := range sounds {
		args, err := s.rowArgs(snd)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, args := range rows {
			if err := upsert(ctx, tx, args); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func upsert(ctx context.Context, db execer, args []any) error {
	_, err := db.ExecContext(ctx, upsertSQL, args...)
	return err
}

func (s *SQLiteRecords) rowArgs(snd *sound.Sound) ([]any, error) {
	if snd == nil || snd.UID == "" {
		return nil, sound.ErrMissingUID
	}
	document, err := json.Marshal(s.naming.Flatten(snd))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "records", "encode document", snd.UID, err)
	}
	stored := s.naming.ToMap(snd)
	stored[sound.KeyMimeType] = snd.MimeType
	stored[sound.KeyProperties] = snd.Properties
	encoded, err := json.Marshal(stored)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "records", "encode sound", snd.UID, err)
	}
	url, _ := s.naming.URL(snd)
	return []any{
		snd.UID,
		nullableString(snd.Path),
		nullableString(snd.Format),
		s.naming.Slug(snd),
		url,
		string(document),
		string(encoded),
		nullableTime(snd.CreatedAt),
		nullableTime(snd.UpdatedAt),
	}, nil
}

func (s *SQLiteRecords) Get(ctx context.Context, uid string) (*sound.Sound, error) {
	var raw string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT sound FROM sounds WHERE uid = ?", uid).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "records", "get", uid, nil)
	}
	if err != nil {
		return nil, err
	}
	return decodeSound(raw)
}

func (s *SQLiteRecords) Rm(ctx context.Context, uid string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM sounds WHERE uid = ?", uid)
		return err
	})
}

func (s *SQLiteRecords) Exists(ctx context.Context, uid string) (bool, error) {
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sounds WHERE uid = ?", uid).Scan(&count)
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteRecords) Search(ctx context.Context, q Query) ([]*sound.Sound, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(q.Text); text != "" {
		where = append(where, `document LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(text)+"%")
	}
	for field, value := range q.Match {
		expr := fmt.Sprintf("json_extract(document, '$.%s')", field)
		if value == nil {
			where = append(where, expr+" IS NULL")
			continue
		}
		where = append(where, expr+" = ?")
		args = append(args, sqlValue(value))
	}

	query := "SELECT sound FROM sounds"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, uid LIMIT ? OFFSET ?"
	args = append(args, q.limit(), q.Offset)

	var results []*sound.Sound
	err := retryOnBusy(ctx, func() error {
		results = results[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			snd, err := decodeSound(raw)
			if err != nil {
				return err
			}
			results = append(results, snd)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func decodeSound(raw string) (*sound.Sound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, services.Wrap(services.ErrStorage, "records", "decode", "", err)
	}
	m := make(map[string]any, len(fields))
	for key, value := range fields {
		if key == sound.KeyProperties {
			var props sound.Properties
			if err := json.Unmarshal(value, &props); err != nil {
				return nil, services.Wrap(services.ErrStorage, "records", "decode properties", "", err)
			}
			m[key] = props
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, services.Wrap(services.ErrStorage, "records", "decode", key, err)
		}
		m[key] = v
	}
	return sound.FromMap(m)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy covers lock contention inside one call. Broader failures are
// left to the caller's RetryPolicy.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
