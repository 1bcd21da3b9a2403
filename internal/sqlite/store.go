// Package sqlite provides a local SQLite Backend for running without the
// script endpoint.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/sqlite/migrations"
)

// Store persists profiles and entries in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ practice.Backend = (*Store)(nil)

// Open opens the database at path, applies migrations and seeds the
// practice list with seed when it is empty.
func Open(ctx context.Context, path string, seed []practice.Practice) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, now: time.Now}
	if err := s.seed(ctx, seed); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) seed(ctx context.Context, ps []practice.Practice) error {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM practices`).Scan(&n); err != nil {
		return fmt.Errorf("count practices: %w", err)
	}
	if n > 0 {
		return nil
	}
	for i, p := range ps {
		if _, err := s.sqlDB.ExecContext(ctx,
			`INSERT OR IGNORE INTO practices (name, position) VALUES (?, ?)`, p.Name, i,
		); err != nil {
			return fmt.Errorf("seed practice %q: %w", p.Name, err)
		}
	}
	return nil
}

func (s *Store) ListPractices(ctx context.Context) ([]practice.Practice, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM practices ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list practices: %w", err)
	}
	defer rows.Close()

	out := []practice.Practice{}
	for rows.Next() {
		var p practice.Practice
		if err := rows.Scan(&p.Name); err != nil {
			return nil, fmt.Errorf("scan practice: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, userID string) (practice.Profile, error) {
	p := practice.Profile{UserID: userID}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, dharma_name FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.Name, &p.DharmaName)
	if errors.Is(err, sql.ErrNoRows) {
		return practice.Profile{}, fmt.Errorf("profile %q: %w", userID, practice.ErrNotFound)
	}
	if err != nil {
		return practice.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertProfile(ctx context.Context, db execer, p practice.Profile) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, dharma_name, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   name = excluded.name,
		   dharma_name = excluded.dharma_name,
		   updated_at = excluded.updated_at`,
		p.UserID, p.Name, p.DharmaName, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) SaveProfile(ctx context.Context, p practice.Profile) error {
	return s.upsertProfile(ctx, s.sqlDB, p)
}

// Submit stores the entries and refreshes the profile from the same form
// in one transaction.
func (s *Store) Submit(ctx context.Context, sub practice.Submission) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertProfile(ctx, tx, practice.Profile{
		UserID:     sub.UserID,
		Name:       sub.Name,
		DharmaName: sub.DharmaName,
	}); err != nil {
		return err
	}

	created := s.now().UTC().UnixMilli()
	for _, e := range sub.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (user_id, date, practice, count, created_at) VALUES (?, ?, ?, ?, ?)`,
			sub.UserID, sub.Date, e.Practice, e.Count, created,
		); err != nil {
			return fmt.Errorf("insert entry %q: %w", e.Practice, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO practices (name, position) VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM practices))`,
			e.Practice,
		); err != nil {
			return fmt.Errorf("register practice %q: %w", e.Practice, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit: %w", err)
	}
	return nil
}

// Summary aggregates a user's entries per date and practice. The streak is
// left to the caller.
func (s *Store) Summary(ctx context.Context, userID string) (practice.Summary, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT date, practice, SUM(count) FROM entries
		 WHERE user_id = ?
		 GROUP BY date, practice
		 ORDER BY date, practice`, userID,
	)
	if err != nil {
		return practice.Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	sum := practice.Summary{UserID: userID, Totals: map[string]int{}}
	for rows.Next() {
		var r practice.Record
		if err := rows.Scan(&r.Date, &r.Practice, &r.Count); err != nil {
			return practice.Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		sum.Records = append(sum.Records, r)
		sum.Total += r.Count
		sum.Totals[r.Practice] += r.Count
	}
	if err := rows.Err(); err != nil {
		return practice.Summary{}, fmt.Errorf("iterate summary rows: %w", err)
	}
	return sum, nil
}
