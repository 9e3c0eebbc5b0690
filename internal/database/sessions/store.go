package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewSessionStore(db *sql.DB) (*Store, error) {
	ss := &Store{db: db}
	if err := ss.initialize(); err != nil {
		return nil, err
	}
	return ss, nil
}

func (ss *Store) initialize() error {
	_, err := ss.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
	`)
	return err
}

func (ss *Store) Create(ctx context.Context, sessionId, role string, createdAt, expiresAt time.Time) error {
	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO sessions (id, role, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, sessionId, role, createdAt, expiresAt)
	return err
}

// Get returns the session with the given id, or nil if there is none.
func (ss *Store) Get(ctx context.Context, sessionId string) (*Session, error) {
	var session Session
	err := ss.db.QueryRowContext(ctx, `
		SELECT id, role, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`, sessionId).Scan(&session.Id, &session.Role, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (ss *Store) Delete(ctx context.Context, sessionId string) error {
	_, err := ss.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE id = ?
	`, sessionId)
	return err
}

// DeleteExpired removes every session that expired before now and returns how
// many were removed.
func (ss *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := ss.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at < ?
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
