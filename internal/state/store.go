// Package state persists connector progress between runs: pagination
// cursors for resumption, the last successful run marker, and a run
// history.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ashfaaq98/opencti-sync/internal/pipeline"
)

// Snapshot is the persisted connector state.
type Snapshot struct {
	ConnectorID       string     `json:"connector_id"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	ObservablesCursor string     `json:"observables_cursor,omitempty"`
	IndicatorsCursor  string     `json:"indicators_cursor,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Run is one recorded run, completed or not.
type Run struct {
	ID            string     `json:"id"`
	ConnectorID   string     `json:"connector_id"`
	Status        string     `json:"status"`
	Observables   int        `json:"observables"`
	Indicators    int        `json:"indicators"`
	Relationships int        `json:"relationships"`
	Batches       int        `json:"batches"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Store is the SQLite-backed state store, scoped to one connector id.
type Store struct {
	db          *sql.DB
	connectorID string
}

// NewStore opens (creating if needed) the state database at dbPath.
func NewStore(dbPath, connectorID string) (*Store, error) {
	if connectorID == "" {
		return nil, fmt.Errorf("connector id is required")
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store := &Store{db: db, connectorID: connectorID}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS connector_state (
			connector_id TEXT PRIMARY KEY,
			last_run INTEGER,
			observables_cursor TEXT,
			indicators_cursor TEXT,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			connector_id TEXT NOT NULL,
			status TEXT NOT NULL,
			observables INTEGER DEFAULT 0,
			indicators INTEGER DEFAULT 0,
			relationships INTEGER DEFAULT 0,
			batches INTEGER DEFAULT 0,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_connector_id ON runs(connector_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// Load returns the current snapshot. A connector with no recorded state
// gets an empty snapshot, not an error.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snapshot := Snapshot{ConnectorID: s.connectorID}

	query := `SELECT last_run, observables_cursor, indicators_cursor, updated_at
		FROM connector_state WHERE connector_id = ?`

	var lastRun sql.NullInt64
	var observablesCursor, indicatorsCursor sql.NullString
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, s.connectorID).
		Scan(&lastRun, &observablesCursor, &indicatorsCursor, &updatedAt)
	if err == sql.ErrNoRows {
		return snapshot, nil
	}
	if err != nil {
		return snapshot, fmt.Errorf("failed to load connector state: %w", err)
	}

	if lastRun.Valid {
		t := time.Unix(lastRun.Int64, 0).UTC()
		snapshot.LastRun = &t
	}
	if observablesCursor.Valid {
		snapshot.ObservablesCursor = observablesCursor.String
	}
	if indicatorsCursor.Valid {
		snapshot.IndicatorsCursor = indicatorsCursor.String
	}
	snapshot.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return snapshot, nil
}

// BeginRun records a new run in running status.
func (s *Store) BeginRun(ctx context.Context, runID string) error {
	query := `INSERT INTO runs (id, connector_id, status, started_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, runID, s.connectorID, RunStatusRunning, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", runID, err)
	}
	return nil
}

// SaveObservablesCursor persists the observable pagination position.
func (s *Store) SaveObservablesCursor(ctx context.Context, cursor string) error {
	return s.saveCursor(ctx, "observables_cursor", cursor)
}

// SaveIndicatorsCursor persists the indicator pagination position.
func (s *Store) SaveIndicatorsCursor(ctx context.Context, cursor string) error {
	return s.saveCursor(ctx, "indicators_cursor", cursor)
}

func (s *Store) saveCursor(ctx context.Context, column, cursor string) error {
	// column is one of two fixed names, never user input.
	query := fmt.Sprintf(`INSERT INTO connector_state (connector_id, %s, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(connector_id) DO UPDATE SET %s = excluded.%s, updated_at = excluded.updated_at`,
		column, column, column)

	_, err := s.db.ExecContext(ctx, query, s.connectorID, cursor, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", column, err)
	}
	return nil
}

// FinishRun closes out a run. Success records last_run and clears both
// cursors so the next scheduled run starts from the beginning; failure
// leaves the cursors for resumption.
func (s *Store) FinishRun(ctx context.Context, runID string, summary pipeline.Summary, runErr error) error {
	now := time.Now().Unix()

	status := RunStatusCompleted
	errMessage := ""
	if runErr != nil {
		status = RunStatusFailed
		errMessage = runErr.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	query := `UPDATE runs SET status = ?, observables = ?, indicators = ?, relationships = ?,
		batches = ?, error = ?, finished_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query,
		status, summary.Observables, summary.Indicators, summary.Relationships,
		summary.Batches, errMessage, now, runID,
	); err != nil {
		return rollback(fmt.Errorf("failed to finish run %s: %w", runID, err))
	}

	if runErr == nil {
		stateQuery := `INSERT INTO connector_state (connector_id, last_run, observables_cursor, indicators_cursor, updated_at)
			VALUES (?, ?, '', '', ?)
			ON CONFLICT(connector_id) DO UPDATE SET
				last_run = excluded.last_run,
				observables_cursor = '',
				indicators_cursor = '',
				updated_at = excluded.updated_at`
		if _, err := tx.ExecContext(ctx, stateQuery, s.connectorID, now, now); err != nil {
			return rollback(fmt.Errorf("failed to record last run: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListRuns returns the connector's run history, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, connector_id, status, observables, indicators, relationships,
		batches, error, started_at, finished_at
		FROM runs WHERE connector_id = ? ORDER BY started_at DESC`
	args := []interface{}{s.connectorID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var errMessage sql.NullString
		var startedAt int64
		var finishedAt sql.NullInt64

		err := rows.Scan(&run.ID, &run.ConnectorID, &run.Status,
			&run.Observables, &run.Indicators, &run.Relationships,
			&run.Batches, &errMessage, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = time.Unix(startedAt, 0).UTC()
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			run.FinishedAt = &t
		}
		if errMessage.Valid {
			run.Error = errMessage.String
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Reset deletes the connector's state and run history. The next run
// behaves like a first run.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM connector_state WHERE connector_id = ?`, s.connectorID); err != nil {
		return rollback(fmt.Errorf("failed to delete connector state: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE connector_id = ?`, s.connectorID); err != nil {
		return rollback(fmt.Errorf("failed to delete run history: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
