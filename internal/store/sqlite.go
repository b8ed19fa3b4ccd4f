package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ncastellan/deskwatch/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the flat database representation of a notification.
type notificationRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Read      bool      `db:"is_read"`
	LinkURL   string    `db:"link_url"`
	CreatedAt time.Time `db:"created_at"`
	Metadata  string    `db:"metadata"`
	FetchedAt time.Time `db:"fetched_at"`
}

func (r notificationRow) toModel() model.Notification {
	n := model.Notification{
		ID:        r.ID,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read,
		LinkURL:   r.LinkURL,
		CreatedAt: r.CreatedAt,
	}
	if r.Metadata != "" {
		// Best effort: a cache row with corrupt metadata still renders.
		_ = json.Unmarshal([]byte(r.Metadata), &n.Metadata)
	}
	return n
}

// UpsertNotifications inserts or replaces a batch of notifications.
// A notification already marked read locally is never reverted to unread
// by a stale server row (read-state is monotonic).
func (s *SQLiteStore) UpsertNotifications(ctx context.Context, items []model.Notification) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO notifications (
			id, title, message, is_read, link_url, created_at, metadata, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			message    = excluded.message,
			is_read    = MAX(notifications.is_read, excluded.is_read),
			link_url   = excluded.link_url,
			created_at = excluded.created_at,
			metadata   = excluded.metadata,
			fetched_at = excluded.fetched_at`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range items {
		meta, err := n.MetadataJSON()
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			n.ID, n.Title, n.Message, n.Read, n.LinkURL, n.CreatedAt, meta, now,
		)
		if err != nil {
			return fmt.Errorf("upserting notification %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// History returns cached notifications, newest first.
func (s *SQLiteStore) History(ctx context.Context, filter HistoryFilter) ([]model.Notification, error) {
	query := "SELECT * FROM notifications"
	where, args := buildWhere(filter)
	query += where + " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	items := make([]model.Notification, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	return items, nil
}

// CountHistory returns the number of cached notifications matching filter.
func (s *SQLiteStore) CountHistory(ctx context.Context, filter HistoryFilter) (int, error) {
	query := "SELECT COUNT(*) FROM notifications"
	where, args := buildWhere(filter)
	query += where

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return count, nil
}

// MarkRead flips one cached notification to read.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead flips every cached notification to read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE is_read = 0")
	if err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// Prune deletes cached notifications created before olderThan and
// returns how many rows were removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE created_at < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading pruned row count: %w", err)
	}
	return int(n), nil
}

func buildWhere(filter HistoryFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if filter.UnreadOnly {
		clauses = append(clauses, "is_read = 0")
	}
	if filter.Query != nil && *filter.Query != "" {
		clauses = append(clauses, "(title LIKE ? OR message LIKE ?)")
		pattern := "%" + *filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", args
	}

	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}
