package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run one orchestrator run
type Run struct {
	ID          string       `json:"id"`
	Trigger     string       `json:"trigger"`
	Status      string       `json:"status"`
	StepsTotal  int          `json:"stepsTotal"`
	StepsOK     int          `json:"stepsOk"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Steps       []StepRecord `json:"steps,omitempty"`
}

// StepRecord outcome of one form step within a run
type StepRecord struct {
	RunID       string    `json:"runId"`
	Form        string    `json:"form"`
	State       string    `json:"state"`
	FilesTotal  int       `json:"filesTotal"`
	FilesOK     int       `json:"filesOk"`
	FilesFailed int       `json:"filesFailed"`
	RowsWritten int       `json:"rowsWritten"`
	DatasetRows int       `json:"datasetRows"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// FileRecord outcome of one source file
type FileRecord struct {
	Form   string `json:"form"`
	Path   string `json:"path"`
	Year   string `json:"year"`
	Month  string `json:"month"`
	Region string `json:"region"`
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// CreateRun opens a run in the running state
func (s *Store) CreateRun(id, trigger string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, trigger, status, started_at)
		VALUES (?, ?, ?, ?)
	`, id, trigger, RunRunning, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun closes a run with its final status and step counts
func (s *Store) FinishRun(id, status string, stepsTotal, stepsOK int, completedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE runs SET
			status = ?,
			steps_total = ?,
			steps_ok = ?,
			completed_at = ?
		WHERE id = ?
	`, status, stepsTotal, stepsOK, completedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveStep stores a step outcome together with its file results
func (s *Store) SaveStep(step StepRecord, files []FileRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO step_results (
			run_id, form, state, files_total, files_ok, files_failed,
			rows_written, dataset_rows, error_message, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, step.RunID, step.Form, step.State, step.FilesTotal, step.FilesOK, step.FilesFailed,
		step.RowsWritten, step.DatasetRows, step.Error, step.StartedAt.UTC(), step.CompletedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert step result: %w", err)
	}

	if len(files) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO file_results (run_id, form, path, year, month, region, status, rows, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare file results: %w", err)
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.Exec(step.RunID, step.Form, f.Path, f.Year, f.Month, f.Region, f.Status, f.Rows, f.Error); err != nil {
				return fmt.Errorf("failed to insert file result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step result: %w", err)
	}
	return nil
}

const runColumns = `id, trigger, status, steps_total, steps_ok, started_at, completed_at`

func scanRun(sc interface{ Scan(...any) error }) (Run, error) {
	var (
		r         Run
		completed sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.Trigger, &r.Status, &r.StepsTotal, &r.StepsOK, &r.StartedAt, &completed); err != nil {
		return Run{}, err
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}

// ListRuns most recent runs first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs failed: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs failed: %w", err)
	}
	return out, nil
}

// GetRun returns a run with its steps
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run failed: %w", err)
	}

	steps, err := s.listSteps(id)
	if err != nil {
		return nil, err
	}
	r.Steps = steps
	return &r, nil
}

// LastRun most recent run, or nil when none has been recorded
func (s *Store) LastRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return s.GetRun(runs[0].ID)
}

func (s *Store) listSteps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, form, state, files_total, files_ok, files_failed,
		       rows_written, dataset_rows, error_message, started_at, completed_at
		FROM step_results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps failed: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var st StepRecord
		if err := rows.Scan(&st.RunID, &st.Form, &st.State, &st.FilesTotal, &st.FilesOK, &st.FilesFailed,
			&st.RowsWritten, &st.DatasetRows, &st.Error, &st.StartedAt, &st.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan step failed: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps failed: %w", err)
	}
	return out, nil
}

// ListFiles file results of a run, optionally filtered by form
func (s *Store) ListFiles(runID, form string) ([]FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT form, path, year, month, region, status, rows, error_message
		FROM file_results
		WHERE run_id = ? AND (? = '' OR form = ?)
		ORDER BY id
	`, runID, form, form)
	if err != nil {
		return nil, fmt.Errorf("query file results failed: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Form, &f.Path, &f.Year, &f.Month, &f.Region, &f.Status, &f.Rows, &f.Error); err != nil {
			return nil, fmt.Errorf("scan file result failed: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file results failed: %w", err)
	}
	return out, nil
}
