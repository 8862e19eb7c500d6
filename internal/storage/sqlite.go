// Package storage is the SQLite persistence layer shared by the request
// ledger, the media catalog and the settings store.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sublingo/sublingo/internal/catalog"
	"github.com/sublingo/sublingo/internal/ledger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename
// (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// --- ledger.Store ---

const requestColumns = `id, title, source_lang, target_lang, subtitle_path, output_path,
	media_id, media_kind, status, job_handle, error_message, created_at, updated_at, completed_at`

func (s *SQLiteStore) InsertRequest(ctx context.Context, req *ledger.Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO translation_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.Title,
		req.SourceLang,
		req.TargetLang,
		req.SubtitlePath,
		req.OutputPath,
		req.Media.ID,
		string(req.Media.Kind),
		string(req.Status),
		req.JobHandle,
		req.ErrorMessage,
		req.CreatedAt,
		req.UpdatedAt,
		nullableTime(req.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ledger.ErrDuplicate
	}
	return err
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*ledger.Request, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+requestColumns+` FROM translation_requests WHERE id = ?`,
		id,
	)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return req, err
}

func (s *SQLiteStore) UpdateRequest(ctx context.Context, req *ledger.Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE translation_requests SET
			title = ?, source_lang = ?, target_lang = ?, subtitle_path = ?, output_path = ?,
			status = ?, job_handle = ?, error_message = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		req.Title,
		req.SourceLang,
		req.TargetLang,
		req.SubtitlePath,
		req.OutputPath,
		string(req.Status),
		req.JobHandle,
		req.ErrorMessage,
		req.UpdatedAt,
		nullableTime(req.CompletedAt),
		req.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListRequests(ctx context.Context) ([]*ledger.Request, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+requestColumns+` FROM translation_requests ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, statuses ...ledger.Status) ([]*ledger.Request, error) {
	if len(statuses) == 0 {
		return []*ledger.Request{}, nil
	}
	placeholders, args := statusArgs(statuses)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+requestColumns+` FROM translation_requests
		 WHERE status IN (`+placeholders+`) ORDER BY created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, statuses ...ledger.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders, args := statusArgs(statuses)
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM translation_requests WHERE status IN (`+placeholders+`)`,
		args...,
	).Scan(&count)
	return count, err
}

func (s *SQLiteStore) HasBlockingRequest(ctx context.Context, media ledger.MediaRef, targetLang string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM translation_requests
		 WHERE media_id = ? AND media_kind = ? AND target_lang = ?
		   AND status IN (?, ?, ?)`,
		media.ID,
		string(media.Kind),
		targetLang,
		string(ledger.StatusPending),
		string(ledger.StatusInProgress),
		string(ledger.StatusCompleted),
	).Scan(&count)
	return count > 0, err
}

func statusArgs(statuses []ledger.Status) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return placeholders, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*ledger.Request, error) {
	var req ledger.Request
	var kind, status string
	var completedAt sql.NullTime
	if err := row.Scan(
		&req.ID,
		&req.Title,
		&req.SourceLang,
		&req.TargetLang,
		&req.SubtitlePath,
		&req.OutputPath,
		&req.Media.ID,
		&kind,
		&status,
		&req.JobHandle,
		&req.ErrorMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	req.Media.Kind = ledger.MediaKind(kind)
	req.Status = ledger.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]*ledger.Request, error) {
	ret := make([]*ledger.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// --- catalog.Store ---

func (s *SQLiteStore) ListTranslatable(ctx context.Context) ([]catalog.Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, parent_id, title, media_path, fingerprint, excluded
		 FROM media_items
		 WHERE kind IN (?, ?) AND excluded = 0
		 ORDER BY id ASC`,
		string(catalog.KindMovie),
		string(catalog.KindEpisode),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]catalog.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (catalog.Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, kind, parent_id, title, media_path, fingerprint, excluded
		 FROM media_items WHERE id = ?`,
		id,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return catalog.Item{}, fmt.Errorf("media item %s not found", id)
	}
	return item, err
}

func (s *SQLiteStore) UpsertItem(ctx context.Context, item catalog.Item) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media_items (id, kind, parent_id, title, media_path, fingerprint, excluded)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			parent_id=excluded.parent_id,
			title=excluded.title,
			media_path=excluded.media_path,
			fingerprint=excluded.fingerprint,
			excluded=excluded.excluded`,
		item.ID,
		string(item.Kind),
		item.ParentID,
		item.Title,
		item.MediaPath,
		item.Fingerprint,
		boolToInt(item.Excluded),
	)
	return err
}

func (s *SQLiteStore) UpdateFingerprint(ctx context.Context, id string, fingerprint string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE media_items SET fingerprint = ? WHERE id = ?`,
		fingerprint,
		id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("media item %s not found", id)
	}
	return nil
}

// SetExcluded propagates down the tree at mutation time, so eligibility reads
// stay a single-row check.
func (s *SQLiteStore) SetExcluded(ctx context.Context, id string, excluded bool) error {
	_, err := s.db.ExecContext(
		ctx,
		`WITH RECURSIVE tree(id) AS (
			SELECT id FROM media_items WHERE id = ?
			UNION ALL
			SELECT m.id FROM media_items m JOIN tree t ON m.parent_id = t.id
		 )
		 UPDATE media_items SET excluded = ? WHERE id IN (SELECT id FROM tree)`,
		id,
		boolToInt(excluded),
	)
	return err
}

func scanItem(row rowScanner) (catalog.Item, error) {
	var item catalog.Item
	var kind string
	var excluded int
	if err := row.Scan(
		&item.ID,
		&kind,
		&item.ParentID,
		&item.Title,
		&item.MediaPath,
		&item.Fingerprint,
		&excluded,
	); err != nil {
		return catalog.Item{}, err
	}
	item.Kind = catalog.Kind(kind)
	item.Excluded = excluded == 1
	return item, nil
}

// --- config.Backend ---

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context, keys []string) (map[string]string, error) {
	ret := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return ret, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		ret[k] = v
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key,
		value,
		time.Now().UTC(),
	)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
