package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// timeLayout has a fixed width so that started_at sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateRun records a running run. A missing SessionID gets a new UUID.
func (s *SQLiteStore) CreateRun(spec RunSpec) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if spec.SessionID == "" {
		spec.SessionID = uuid.New().String()
	}

	run := &Run{
		RunSpec:   spec,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", slog.String("id", spec.SessionID), slog.String("command", spec.Command))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, command, status, ranks, particles, steps, backend, output_dir, config, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.SessionID, spec.Command, string(run.Status), spec.Ranks, spec.Particles, spec.Steps,
		spec.Backend, spec.OutputDir, spec.Config, run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished and records its output files.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string, outputs []string) (err error) {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := tx.Exec(`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(timeLayout), errVal, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	for i, path := range outputs {
		if _, err = tx.Exec(`INSERT INTO run_outputs (run_id, pos, path) VALUES (?, ?, ?)`, id, i, path); err != nil {
			return fmt.Errorf("failed to record output %s: %w", path, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run completion: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRow(selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.Outputs, err = s.outputs(id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(selectRuns+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, run := range runs {
		if run.Outputs, err = s.outputs(run.SessionID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLiteStore) outputs(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM run_outputs WHERE run_id = ? ORDER BY pos`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs of run %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectRuns = `SELECT id, command, status, ranks, particles, steps, backend, output_dir, config,
	started_at, completed_at, error FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		status    string
		started   string
		completed sql.NullString
		errMsg    sql.NullString
	)
	if err := row.Scan(&run.SessionID, &run.Command, &status, &run.Ranks, &run.Particles, &run.Steps,
		&run.Backend, &run.OutputDir, &run.Config, &started, &completed, &errMsg); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad start time %q: %w", run.SessionID, started, err)
	}
	run.StartedAt = t
	if completed.Valid {
		c, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad completion time %q: %w", run.SessionID, completed.String, err)
		}
		run.CompletedAt = &c
	}
	run.Error = errMsg.String
	return &run, nil
}
