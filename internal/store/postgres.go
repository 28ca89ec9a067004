package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	ImagePhaseInitial  = "initial"
	ImagePhaseResponse = "response"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UserCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Reports

const reportColumns = `id, category, location, description, status, assigned_to, COALESCE(assigned_user_id, ''), created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var item Report
	err := row.Scan(
		&item.ID, &item.Category, &item.Location, &item.Description,
		&item.Status, &item.AssignedTo, &item.AssignedUserID,
		&item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

// ListReports returns the entire collection, newest activity first, with both
// image sequences attached in upload order.
func (s *PostgresStore) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Report, 0)
	index := make(map[string]int)
	for rows.Next() {
		item, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	imageRows, err := s.db.QueryContext(ctx, `
		SELECT report_id, phase, url FROM report_images ORDER BY report_id, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list report images: %w", err)
	}
	defer imageRows.Close()

	for imageRows.Next() {
		var reportID, phase, url string
		if err := imageRows.Scan(&reportID, &phase, &url); err != nil {
			return nil, fmt.Errorf("scan report image: %w", err)
		}
		i, ok := index[reportID]
		if !ok {
			continue
		}
		if phase == ImagePhaseResponse {
			items[i].ResponseImages = append(items[i].ResponseImages, url)
		} else {
			items[i].ImageURLs = append(items[i].ImageURLs, url)
		}
	}
	if err := imageRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report images: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (Report, error) {
	item, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, reportID))
	if err != nil {
		return Report{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, url FROM report_images WHERE report_id = $1 ORDER BY id
	`, reportID)
	if err != nil {
		return Report{}, fmt.Errorf("get report images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var phase, url string
		if err := rows.Scan(&phase, &url); err != nil {
			return Report{}, fmt.Errorf("scan report image: %w", err)
		}
		if phase == ImagePhaseResponse {
			item.ResponseImages = append(item.ResponseImages, url)
		} else {
			item.ImageURLs = append(item.ImageURLs, url)
		}
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterate report images: %w", err)
	}
	return item, nil
}

// InsertReport writes the report row and its initial evidence images in one
// transaction so a half-created report is never visible.
func (s *PostgresStore) InsertReport(ctx context.Context, item Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, category, location, description, status, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.Category, item.Location, item.Description, item.Status, item.AssignedTo)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert report: %w", err)
	}
	for _, url := range item.ImageURLs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_images (report_id, phase, url) VALUES ($1, $2, $3)
		`, item.ID, ImagePhaseInitial, url); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert report image: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert report: %w", err)
	}
	return nil
}

// AssignReport sets the assignment target and assignee and, when the report
// is still pending and gains a real target, advances it to assigned — a
// single UPDATE so assignment and status can never diverge.
func (s *PostgresStore) AssignReport(ctx context.Context, reportID, target, assigneeID string) (Report, error) {
	var assignee any
	if assigneeID != "" {
		assignee = assigneeID
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET assigned_to = $2,
			assigned_user_id = $3,
			status = CASE WHEN status = 'pending' AND $2 <> 'unassigned' THEN 'assigned' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
	`, reportID, target, assignee)
	if err != nil {
		return Report{}, fmt.Errorf("assign report: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Report{}, sql.ErrNoRows
	}
	return s.GetReport(ctx, reportID)
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, reportID, status string) (Report, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = $2, updated_at = NOW() WHERE id = $1
	`, reportID, status)
	if err != nil {
		return Report{}, fmt.Errorf("update report status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Report{}, sql.ErrNoRows
	}
	return s.GetReport(ctx, reportID)
}

// AppendResponseImage is a plain INSERT plus a timestamp bump; there is no
// read-modify-write window for concurrent uploaders to race on.
func (s *PostgresStore) AppendResponseImage(ctx context.Context, reportID, url string) (Report, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Report{}, fmt.Errorf("begin append image: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE reports SET updated_at = NOW() WHERE id = $1`, reportID)
	if err != nil {
		_ = tx.Rollback()
		return Report{}, fmt.Errorf("touch report: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return Report{}, sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO report_images (report_id, phase, url) VALUES ($1, $2, $3)
	`, reportID, ImagePhaseResponse, url); err != nil {
		_ = tx.Rollback()
		return Report{}, fmt.Errorf("append response image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Report{}, fmt.Errorf("commit append image: %w", err)
	}
	return s.GetReport(ctx, reportID)
}

// Notes

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, report_id, author_id, author_name, body)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.ReportID, note.AuthorID, note.AuthorName, note.Body)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotesByReport(ctx context.Context, reportID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, author_id, author_name, body, created_at
		FROM notes
		WHERE report_id = $1
		ORDER BY created_at DESC, id DESC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.ReportID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// Dashboard statistics

func (s *PostgresStore) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	items := make([]StatusCount, 0)
	for rows.Next() {
		var item StatusCount
		if err := rows.Scan(&item.Status, &item.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, count(*) FROM reports GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	items := make([]CategoryCount, 0)
	for rows.Next() {
		var item CategoryCount
		if err := rows.Scan(&item.Category, &item.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// IsNotFound reports whether an error is the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
