package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Upload statuses
const (
	UploadReceived  = "received"
	UploadProcessed = "processed"
	UploadFailed    = "failed"
)

// Upload one file received through the upload endpoint
type Upload struct {
	ID          string     `json:"id"`
	Form        string     `json:"form"`
	Year        string     `json:"year"`
	Month       string     `json:"month"`
	Region      string     `json:"region"`
	Filename    string     `json:"filename"`
	StoredPath  string     `json:"storedPath"`
	Size        int64      `json:"size"`
	Hash        string     `json:"hash"`
	Status      string     `json:"status"`
	RunID       string     `json:"runId,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CreateUpload records a received file
func (s *Store) CreateUpload(u Upload) error {
	if u.Status == "" {
		u.Status = UploadReceived
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO uploads (id, form, year, month, region, filename, stored_path, file_size, file_hash, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Form, u.Year, u.Month, u.Region, u.Filename, u.StoredPath, u.Size, u.Hash, u.Status, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// FinishUpload stores the processing outcome of an upload
func (s *Store) FinishUpload(id, status, runID, errorMessage string) error {
	res, err := s.db.Exec(`
		UPDATE uploads SET
			status = ?,
			run_id = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ?
	`, status, runID, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upload %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListUploads most recent uploads first, optionally filtered by form
func (s *Store) ListUploads(form string, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, form, year, month, region, filename, stored_path, file_size, file_hash,
		       status, run_id, error_message, created_at, completed_at
		FROM uploads
		WHERE ? = '' OR form = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, form, form, limit)
	if err != nil {
		return nil, fmt.Errorf("query uploads failed: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var (
			u         Upload
			completed sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Form, &u.Year, &u.Month, &u.Region, &u.Filename, &u.StoredPath,
			&u.Size, &u.Hash, &u.Status, &u.RunID, &u.Error, &u.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan upload failed: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			u.CompletedAt = &t
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads failed: %w", err)
	}
	return out, nil
}
