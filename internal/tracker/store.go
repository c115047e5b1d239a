package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/db"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Kind   model.RunKind   `json:"kind,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// AttemptCounts aggregates attempts by outcome.
type AttemptCounts struct {
	Total          int `json:"total"`
	Success        int `json:"success"`
	Failed         int `json:"failed"`
	NotFound       int `json:"not_found"`
	SkippedPrivate int `json:"skipped_private"`
}

// RunCounts aggregates runs by status.
type RunCounts struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Store persists runs and attempts. The conditional methods report whether
// a running row was updated.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	UpdateProgress(ctx context.Context, runID string, processed, found int) (bool, error)
	CompleteRun(ctx context.Context, runID string, found, processed int, at time.Time) (bool, error)
	FailRun(ctx context.Context, runID string, errs []string, at time.Time) (bool, error)
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error)
	CountAttempts(ctx context.Context, since time.Time) (AttemptCounts, error)
	CountRuns(ctx context.Context, since time.Time) (RunCounts, error)
}

// PostgresStore implements Store over acquisition_runs and
// acquisition_attempts.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a store backed by pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const runColumns = `id, config, status, total_found, total_processed, errors, started_at, completed_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return eris.Wrap(err, "tracker: marshal run config")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO acquisition_runs (id, kind, config, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Config.Kind), cfgJSON, string(run.Status), run.StartedAt)
	return eris.Wrap(err, "tracker: insert run")
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var (
		run     model.Run
		cfgJSON []byte
		status  string
	)
	if err := row.Scan(&run.ID, &cfgJSON, &status, &run.TotalFound, &run.TotalProcessed,
		&run.Errors, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &run.Config); err != nil {
			return nil, eris.Wrap(err, "tracker: unmarshal run config")
		}
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM acquisition_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "tracker: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "tracker: get run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM acquisition_runs`
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "tracker: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "tracker: iterate runs")
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, runID string, processed, found int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE acquisition_runs
		SET total_processed = GREATEST(total_processed, $2), total_found = GREATEST(total_found, $3)
		WHERE id = $1 AND status = 'running'`,
		runID, processed, found)
	if err != nil {
		return false, eris.Wrap(err, "tracker: update progress")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, found, processed int, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE acquisition_runs
		SET status = 'completed', total_found = GREATEST(total_found, $2),
			total_processed = GREATEST(total_processed, $3), completed_at = $4
		WHERE id = $1 AND status = 'running'`,
		runID, found, processed, at)
	if err != nil {
		return false, eris.Wrap(err, "tracker: complete run")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errs []string, at time.Time) (bool, error) {
	if errs == nil {
		errs = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE acquisition_runs
		SET status = 'failed', errors = errors || $2::text[], completed_at = $3
		WHERE id = $1 AND status = 'running'`,
		runID, errs, at)
	if err != nil {
		return false, eris.Wrap(err, "tracker: fail run")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	var errMsg *string
	if a.Error != "" {
		errMsg = &a.Error
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO acquisition_attempts
			(run_id, candidate_id, handle, platform, status, error, duration_ms, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.RunID, a.CandidateID, a.Handle, string(a.Platform), string(a.Status), errMsg,
		a.DurationMs, a.RawPayload, a.CreatedAt,
	).Scan(&a.ID)
	return eris.Wrap(err, "tracker: insert attempt")
}

func (s *PostgresStore) ListAttempts(ctx context.Context, runID string, limit int) ([]model.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, candidate_id, handle, platform, status, COALESCE(error, ''), duration_ms, created_at
		FROM acquisition_attempts WHERE run_id = $1 ORDER BY id LIMIT $2`,
		runID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: list attempts")
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var (
			a        model.Attempt
			platform string
			status   string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.CandidateID, &a.Handle, &platform, &status,
			&a.Error, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "tracker: scan attempt")
		}
		a.Platform = model.Platform(platform)
		a.Status = model.AttemptStatus(status)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "tracker: iterate attempts")
}

func (s *PostgresStore) CountAttempts(ctx context.Context, since time.Time) (AttemptCounts, error) {
	var c AttemptCounts
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'not_found'),
			COUNT(*) FILTER (WHERE status = 'skipped_private')
		FROM acquisition_attempts WHERE created_at >= $1`,
		since,
	).Scan(&c.Total, &c.Success, &c.Failed, &c.NotFound, &c.SkippedPrivate)
	return c, eris.Wrap(err, "tracker: count attempts")
}

func (s *PostgresStore) CountRuns(ctx context.Context, since time.Time) (RunCounts, error) {
	var c RunCounts
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM acquisition_runs WHERE started_at >= $1`,
		since,
	).Scan(&c.Total, &c.Running, &c.Completed, &c.Failed)
	return c, eris.Wrap(err, "tracker: count runs")
}
