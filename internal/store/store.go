package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store persists repositories, checks and webhook deliveries in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and creates if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS repositories (
			id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			full_name TEXT NOT NULL,
			private INTEGER NOT NULL DEFAULT 0,
			html_url TEXT NOT NULL DEFAULT '',
			default_branch TEXT NOT NULL DEFAULT '',
			hook_id INTEGER,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_repositories (
			user_login TEXT NOT NULL,
			repository_id INTEGER NOT NULL,
			PRIMARY KEY (user_login, repository_id)
		)`,
		`CREATE TABLE IF NOT EXISTS checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (repository_id, type)
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			repository_id INTEGER,
			status TEXT NOT NULL,
			error_message TEXT,
			received_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_received
		ON deliveries(received_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// UpsertRepository stores repo and, when userLogin is set, records that the
// user can access it. The stored hook ID is never overwritten here.
func (s *Store) UpsertRepository(ctx context.Context, userLogin string, repo *Repository) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories
		(id, owner, name, full_name, private, html_url, default_branch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			name = excluded.name,
			full_name = excluded.full_name,
			private = excluded.private,
			html_url = excluded.html_url,
			default_branch = excluded.default_branch,
			updated_at = excluded.updated_at
	`,
		repo.ID,
		repo.Owner,
		repo.Name,
		repo.FullName,
		repo.Private,
		repo.HTMLURL,
		repo.DefaultBranch,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert repository: %w", err)
	}
	repo.UpdatedAt = now.Truncate(time.Second)

	if userLogin != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_repositories (user_login, repository_id)
			VALUES (?, ?)
		`, userLogin, repo.ID); err != nil {
			return fmt.Errorf("failed to link repository to user: %w", err)
		}
	}

	return nil
}

// GetRepository returns the repository with its checks, or ErrNotFound.
func (s *Store) GetRepository(ctx context.Context, id int64) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, full_name, private, html_url, default_branch, hook_id, updated_at
		FROM repositories
		WHERE id = ?
	`, id)

	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query repository: %w", err)
	}

	checks, err := s.ListChecks(ctx, id)
	if err != nil {
		return nil, err
	}
	repo.Checks = checks

	return repo, nil
}

// ListRepositories returns the repositories linked to userLogin, ordered by
// full name.
func (s *Store) ListRepositories(ctx context.Context, userLogin string) ([]*Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.owner, r.name, r.full_name, r.private, r.html_url,
		       r.default_branch, r.hook_id, r.updated_at
		FROM repositories r
		INNER JOIN user_repositories u ON u.repository_id = r.id
		WHERE u.user_login = ?
		ORDER BY r.full_name
	`, userLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for _, repo := range repos {
		checks, err := s.ListChecks(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		repo.Checks = checks
	}

	return repos, nil
}

// HasAccess reports whether userLogin has been linked to the repository.
func (s *Store) HasAccess(ctx context.Context, userLogin string, repoID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_repositories
		WHERE user_login = ? AND repository_id = ?
	`, userLogin, repoID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query repository access: %w", err)
	}
	return count > 0, nil
}

// SetHookID stores the GitHub webhook ID for a repository. A nil hookID
// clears it.
func (s *Store) SetHookID(ctx context.Context, repoID int64, hookID *int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE repositories SET hook_id = ? WHERE id = ?`, hookID, repoID)
	if err != nil {
		return fmt.Errorf("failed to update hook id: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %d: %w", repoID, ErrNotFound)
	}
	return nil
}

// SaveCheck enables a check type on a repository. Saving an already enabled
// check returns the existing row.
func (s *Store) SaveCheck(ctx context.Context, repoID int64, checkType, createdBy string) (*Check, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO checks (repository_id, type, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, repoID, checkType, createdBy, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to insert check: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, repository_id, type, created_by, created_at
		FROM checks
		WHERE repository_id = ? AND type = ?
	`, repoID, checkType)
	return scanCheck(row)
}

// DeleteCheck disables a check type. It reports whether a row was removed.
func (s *Store) DeleteCheck(ctx context.Context, repoID int64, checkType string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checks WHERE repository_id = ? AND type = ?
	`, repoID, checkType)
	if err != nil {
		return false, fmt.Errorf("failed to delete check: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// ListChecks returns the checks enabled on a repository, oldest first.
func (s *Store) ListChecks(ctx context.Context, repoID int64) ([]Check, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, type, created_by, created_at
		FROM checks
		WHERE repository_id = ?
		ORDER BY id
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer rows.Close()

	checks := []Check{}
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		checks = append(checks, *check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return checks, nil
}

// RecordDelivery stores the outcome of a webhook delivery. Redelivered IDs
// overwrite the previous outcome.
func (s *Store) RecordDelivery(ctx context.Context, d *Delivery) error {
	if _, err := s.writeDelivery(ctx, "INSERT OR REPLACE", d); err != nil {
		return err
	}
	return nil
}

// InsertDelivery stores d only when no delivery with the same ID exists and
// reports whether it was written.
func (s *Store) InsertDelivery(ctx context.Context, d *Delivery) (bool, error) {
	return s.writeDelivery(ctx, "INSERT OR IGNORE", d)
}

func (s *Store) writeDelivery(ctx context.Context, verb string, d *Delivery) (bool, error) {
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, verb+` INTO deliveries
		(id, event, repository_id, status, error_message, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.Event,
		d.RepositoryID,
		d.Status,
		d.ErrorMessage,
		d.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert delivery: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert delivery: %w", err)
	}
	return n > 0, nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, repository_id, status, error_message, received_at
		FROM deliveries
		ORDER BY received_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var receivedAt string
		if err := rows.Scan(&d.ID, &d.Event, &d.RepositoryID, &d.Status, &d.ErrorMessage, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		if d.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt); err != nil {
			return nil, fmt.Errorf("failed to parse received_at timestamp: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return deliveries, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*Repository, error) {
	var repo Repository
	var updatedAt string

	err := s.Scan(
		&repo.ID,
		&repo.Owner,
		&repo.Name,
		&repo.FullName,
		&repo.Private,
		&repo.HTMLURL,
		&repo.DefaultBranch,
		&repo.HookID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}
	repo.Checks = []Check{}

	return &repo, nil
}

func scanCheck(s scanner) (*Check, error) {
	var check Check
	var createdAt string

	if err := s.Scan(&check.ID, &check.RepositoryID, &check.Type, &check.CreatedBy, &createdAt); err != nil {
		return nil, err
	}

	var err error
	check.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}

	return &check, nil
}
