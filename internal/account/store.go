// Package account persists admitted candidates: the highest-confidence
// identity layer, unique on (platform, handle).
package account

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
	"github.com/sells-group/acquisition-cli/internal/handle"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// EnrichmentFilter selects candidates for a re-enrichment batch.
type EnrichmentFilter struct {
	Platform        model.Platform
	Country         string
	Source          string
	IDs             []int64
	OnlyMissingData bool
	Limit           int
}

// Store is the candidate persistence contract used by reconciliation and
// discovery.
type Store interface {
	Get(ctx context.Context, id int64) (*model.Candidate, error)
	GetByHandle(ctx context.Context, platform model.Platform, h string) (*model.Candidate, error)
	Insert(ctx context.Context, c *model.Candidate) (bool, error)
	InsertBatch(ctx context.Context, cs []model.Candidate) (int64, error)
	UpdateCountry(ctx context.Context, id int64, country string) error
	UpdateProfile(ctx context.Context, id int64, p model.Profile) error
	SetActive(ctx context.Context, id int64, active bool) error
	ListForEnrichment(ctx context.Context, f EnrichmentFilter) ([]model.Candidate, error)
	SampleSeeds(ctx context.Context, platform model.Platform, country string, n int) ([]model.Candidate, error)
	CountDiscoveredSince(ctx context.Context, platform model.Platform, source string, since time.Time) (int, error)
	Stats(ctx context.Context, scope model.StatsScope) (model.Stats, error)
}

// PostgresStore implements Store over the candidates table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a store backed by pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const candidateColumns = `id, platform, handle, source, COALESCE(email, ''), profile, active, COALESCE(country, ''), created_at, updated_at`

func scanCandidate(row pgx.Row) (*model.Candidate, error) {
	var (
		c           model.Candidate
		platform    string
		profileJSON []byte
	)
	if err := row.Scan(&c.ID, &platform, &c.Handle, &c.Source, &c.Email, &profileJSON,
		&c.Active, &c.Country, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Platform = model.Platform(platform)
	if len(profileJSON) > 0 {
		var p model.Profile
		if err := json.Unmarshal(profileJSON, &p); err != nil {
			return nil, eris.Wrap(err, "account: unmarshal profile")
		}
		c.Profile = &p
	}
	return &c, nil
}

func collect(rows pgx.Rows) ([]model.Candidate, error) {
	defer rows.Close()
	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "account: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "account: iterate candidates")
}

// Get returns a candidate by id, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, eris.Wrapf(err, "account: get %d", id)
}

// GetByHandle returns the candidate for a normalized handle, or nil.
func (s *PostgresStore) GetByHandle(ctx context.Context, platform model.Platform, h string) (*model.Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE platform = $1 AND handle = $2`,
		string(platform), h))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, eris.Wrapf(err, "account: get %s/%s", platform, h)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert adds a candidate and sets its id. It reports false without error
// when (platform, handle) already exists.
func (s *PostgresStore) Insert(ctx context.Context, c *model.Candidate) (bool, error) {
	var profileJSON []byte
	if c.Profile != nil {
		var err error
		if profileJSON, err = json.Marshal(c.Profile); err != nil {
			return false, eris.Wrap(err, "account: marshal profile")
		}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO candidates (platform, handle, source, email, profile_url, profile, active, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (platform, handle) DO NOTHING
		RETURNING id, created_at, updated_at`,
		string(c.Platform), c.Handle, c.Source, nullable(c.Email), handle.ProfileURL(c.Platform, c.Handle),
		profileJSON, c.Active, nullable(c.Country),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "account: insert %s/%s", c.Platform, c.Handle)
	}
	return true, nil
}

// InsertBatch bulk-inserts candidates, skipping rows that already exist. It
// returns the number of rows created.
func (s *PostgresStore) InsertBatch(ctx context.Context, cs []model.Candidate) (int64, error) {
	rows := make([][]any, len(cs))
	for i, c := range cs {
		rows[i] = []any{
			string(c.Platform), c.Handle, c.Source, nullable(c.Email),
			handle.ProfileURL(c.Platform, c.Handle), c.Active, nullable(c.Country),
		}
	}
	n, err := db.BulkInsert(ctx, s.pool, db.BulkConfig{
		Table:        "candidates",
		Columns:      []string{"platform", "handle", "source", "email", "profile_url", "active", "country"},
		ConflictKeys: []string{"platform", "handle"},
	}, rows)
	return n, eris.Wrap(err, "account: insert batch")
}

// UpdateCountry reassigns a candidate's country and refreshes updated_at.
func (s *PostgresStore) UpdateCountry(ctx context.Context, id int64, country string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE candidates SET country = $2, updated_at = now() WHERE id = $1`, id, country)
	return eris.Wrapf(err, "account: update country %d", id)
}

// UpdateProfile stores freshly enriched profile data.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, p model.Profile) error {
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "account: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE candidates SET profile = $2, updated_at = now() WHERE id = $1`, id, profileJSON)
	return eris.Wrapf(err, "account: update profile %d", id)
}

// SetActive flips the active flag.
func (s *PostgresStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE candidates SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	return eris.Wrapf(err, "account: set active %d", id)
}

// ListForEnrichment returns active candidates matching f, least recently
// refreshed first.
func (s *PostgresStore) ListForEnrichment(ctx context.Context, f EnrichmentFilter) ([]model.Candidate, error) {
	where := []string{"active"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Platform != "" {
		add("platform = $%d", string(f.Platform))
	}
	if f.Country != "" {
		add("country = $%d", f.Country)
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if len(f.IDs) > 0 {
		add("id = ANY($%d)", f.IDs)
	}
	if f.OnlyMissingData {
		where = append(where, "profile IS NULL")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM candidates WHERE %s ORDER BY updated_at, id LIMIT $%d`,
		candidateColumns, strings.Join(where, " AND "), len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "account: list for enrichment")
	}
	return collect(rows)
}

// SampleSeeds returns a random sample of active candidates to expand from.
func (s *PostgresStore) SampleSeeds(ctx context.Context, platform model.Platform, country string, n int) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		WHERE platform = $1 AND active AND ($2 = '' OR country = $2)
		ORDER BY random() LIMIT $3`,
		string(platform), country, n)
	if err != nil {
		return nil, eris.Wrap(err, "account: sample seeds")
	}
	return collect(rows)
}

// CountDiscoveredSince counts candidates a source admitted on a platform
// since the given time.
func (s *PostgresStore) CountDiscoveredSince(ctx context.Context, platform model.Platform, source string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM candidates WHERE platform = $1 AND source = $2 AND created_at >= $3`,
		string(platform), source, since,
	).Scan(&n)
	return n, eris.Wrap(err, "account: count discovered")
}

// Stats aggregates candidates and their attempts within scope. LastRun is
// left for the caller.
func (s *PostgresStore) Stats(ctx context.Context, scope model.StatsScope) (model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE c.profile IS NOT NULL),
			COUNT(*) FILTER (WHERE c.profile IS NULL),
			COALESCE(SUM(att.failed), 0),
			COUNT(*) FILTER (WHERE att.total = 0)
		FROM candidates c
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE a.status = 'failed') AS failed
			FROM acquisition_attempts a WHERE a.candidate_id = c.id
		) att ON true
		WHERE ($1 = '' OR c.platform = $1) AND ($2 = '' OR c.country = $2) AND ($3 = '' OR c.source = $3)`,
		string(scope.Platform), scope.Country, scope.Source,
	).Scan(&st.TotalCandidates, &st.WithData, &st.MissingData, &st.FailedAttempts, &st.NeverAttempted)
	return st, eris.Wrap(err, "account: stats")
}
