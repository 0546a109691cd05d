package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence for import history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// ImportRun Operations
// ============================================================================

const runColumns = `
	id, file_name, status, records, batches, batches_completed,
	batches_rejected, batches_failed, start_time, end_time, error_message
`

// CreateImportRun inserts a new ImportRun. The caller assigns the ID.
func (s *Store) CreateImportRun(run *ImportRun) error {
	if run.ID == "" {
		return errors.New("import run id is required")
	}

	const query = `
		INSERT INTO import_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(
		query,
		run.ID, run.FileName, run.Status, run.Records, run.Batches,
		run.BatchesCompleted, run.BatchesRejected, run.BatchesFailed,
		run.StartTime, run.EndTime, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}
	return nil
}

// UpdateImportRun updates an existing ImportRun by ID
func (s *Store) UpdateImportRun(run *ImportRun) error {
	const query = `
		UPDATE import_runs SET
			file_name = ?, status = ?, records = ?, batches = ?,
			batches_completed = ?, batches_rejected = ?, batches_failed = ?,
			start_time = ?, end_time = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.FileName, run.Status, run.Records, run.Batches,
		run.BatchesCompleted, run.BatchesRejected, run.BatchesFailed,
		run.StartTime, run.EndTime, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("import run %s: %w", run.ID, ErrNotFound)
	}

	return nil
}

// GetImportRun retrieves an ImportRun by ID
func (s *Store) GetImportRun(id string) (*ImportRun, error) {
	query := `SELECT ` + runColumns + ` FROM import_runs WHERE id = ?`

	run := &ImportRun{}
	err := scanRun(s.db.QueryRow(query, id), run)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("import run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query import run: %w", err)
	}

	return run, nil
}

// ListImportRuns retrieves the most recent ImportRuns, newest first
func (s *Store) ListImportRuns(limit int) ([]ImportRun, error) {
	query := `SELECT ` + runColumns + ` FROM import_runs ORDER BY start_time DESC`
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		run := ImportRun{}
		if err := scanRun(rows, &run); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, run *ImportRun) error {
	var endTime sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(
		&run.ID, &run.FileName, &run.Status, &run.Records, &run.Batches,
		&run.BatchesCompleted, &run.BatchesRejected, &run.BatchesFailed,
		&run.StartTime, &endTime, &errMsg,
	)
	if err != nil {
		return err
	}
	run.EndTime = endTime.Time
	run.ErrorMessage = errMsg.String
	return nil
}

// ============================================================================
// ImportBatch Operations
// ============================================================================

// AddImportBatch inserts a batch outcome and sets its ID
func (s *Store) AddImportBatch(b *ImportBatch) error {
	const query = `
		INSERT INTO import_batches (
			run_id, batch_index, size, outcome, message, attempts, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		b.RunID, b.BatchIndex, b.Size, b.Outcome, b.Message, b.Attempts, b.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import batch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	b.ID = id
	return nil
}

// ListImportBatches retrieves the batches of a run in upload order
func (s *Store) ListImportBatches(runID string) ([]ImportBatch, error) {
	const query = `
		SELECT id, run_id, batch_index, size, outcome, message, attempts, duration_ms
		FROM import_batches WHERE run_id = ? ORDER BY batch_index
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import batches: %w", err)
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		b := ImportBatch{}
		err := rows.Scan(
			&b.ID, &b.RunID, &b.BatchIndex, &b.Size, &b.Outcome,
			&b.Message, &b.Attempts, &b.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import batches: %w", err)
	}

	return batches, nil
}
