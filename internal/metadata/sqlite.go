package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// SqliteStore keeps records in the upload_records table. Insertion order is
// the autoincrement id.
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(db *sql.DB) (*SqliteStore, error) {
	s := &SqliteStore{db: db}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize metadata table: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS upload_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			upload_date TIMESTAMP NOT NULL,
			size INTEGER NOT NULL
		);
	`)
	return err
}

func (s *SqliteStore) List(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	rows, err := s.db.QueryContext(ctx, "SELECT filename, title, description, upload_date, size FROM upload_records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Filename, &r.Title, &r.Description, &r.UploadDate, &r.Size); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over records: %w", err)
	}
	return records, nil
}

func (s *SqliteStore) Append(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO upload_records (filename, title, description, upload_date, size) VALUES (?, ?, ?, ?, ?)",
		record.Filename,
		record.Title,
		record.Description,
		record.UploadDate,
		record.Size,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (s *SqliteStore) Remove(ctx context.Context, filename string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM upload_records WHERE filename = ?", filename)
	if err != nil {
		return 0, fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	return int(n), nil
}
