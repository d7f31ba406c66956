package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const runColumns = `id, argv, folder, file_type, run_limit, pid, started_at, finished_at,
	exit_code, cancelled, killed, chars, turns, diagnostics, error`

// Repository reads and writes runs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanRun(scanner interface{ Scan(...any) error }) (Run, error) {
	var m runModel
	err := scanner.Scan(
		&m.ID, &m.Argv, &m.Folder, &m.FileType, &m.Limit, &m.PID,
		&m.StartedAt, &m.FinishedAt, &m.ExitCode,
		&m.Cancelled, &m.Killed, &m.Chars, &m.Turns, &m.Diagnostics, &m.Error,
	)
	if err != nil {
		return Run{}, err
	}
	return m.toDomain()
}

// Insert stores a new run.
func (r *Repository) Insert(ctx context.Context, run Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Argv, m.Folder, m.FileType, m.Limit, m.PID,
		m.StartedAt, m.FinishedAt, m.ExitCode,
		m.Cancelled, m.Killed, m.Chars, m.Turns, m.Diagnostics, m.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish records how a run ended.
func (r *Repository) Finish(ctx context.Context, id string, out Outcome) error {
	diags, err := json.Marshal(nonNil(out.Diagnostics))
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, exit_code = ?, cancelled = ?, killed = ?,
			chars = ?, turns = ?, diagnostics = ?, error = ?
		WHERE id = ?`,
		out.FinishedAt.UnixMilli(), out.ExitCode, out.Cancelled, out.Killed,
		out.Chars, out.Turns, string(diags), out.Error,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Get returns a single run.
func (r *Repository) Get(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, notFound(id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns runs newest first.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if opts.Folder != "" {
		query += ` WHERE folder = ?`
		args = append(args, opts.Folder)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and returns how many went.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
