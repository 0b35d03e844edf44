package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mail-triage/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

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

// RecordDecision inserts one journal entry. A missing ID or timestamp is
// filled in.
func (s *SQLiteStore) RecordDecision(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	var rating sql.NullInt64
	if d.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*d.Rating), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, cycle_id, uid, subject, sender,
			rating, category, action, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CycleID, int64(d.UID), d.Subject, d.Sender,
		rating, d.Category, d.Action, d.Detail, d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording decision for UID %d: %w", d.UID, err)
	}
	return nil
}

// RecentDecisions returns journal entries newest first.
func (s *SQLiteStore) RecentDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	var conditions []string
	var args []interface{}

	if filter.CycleID != nil {
		conditions = append(conditions, "cycle_id = ?")
		args = append(args, *filter.CycleID)
	}
	if filter.Action != nil {
		conditions = append(conditions, "action = ?")
		args = append(args, *filter.Action)
	}
	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT id, cycle_id, uid, subject, sender, rating, category, action, detail, created_at
		FROM decisions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// ActionCounts returns how many decisions of each action were recorded
// at or after since.
func (s *SQLiteStore) ActionCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT action, COUNT(*) FROM decisions WHERE created_at >= ? GROUP BY action",
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scanning action count: %w", err)
		}
		counts[action] = n
	}

	return counts, rows.Err()
}

// Prune deletes entries recorded before before and returns how many were
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM decisions WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning decisions: %w", err)
	}
	return res.RowsAffected()
}

func scanDecision(rows *sqlx.Rows) (model.Decision, error) {
	var (
		d         model.Decision
		uid       int64
		rating    sql.NullInt64
		createdAt time.Time
	)

	err := rows.Scan(
		&d.ID, &d.CycleID, &uid, &d.Subject, &d.Sender,
		&rating, &d.Category, &d.Action, &d.Detail, &createdAt,
	)
	if err != nil {
		return model.Decision{}, fmt.Errorf("scanning decision row: %w", err)
	}

	d.UID = uint32(uid)
	d.CreatedAt = createdAt
	if rating.Valid {
		r := int(rating.Int64)
		d.Rating = &r
	}

	return d, nil
}
