package proxypool

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/db"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// EndpointStore persists endpoints and their health counters.
type EndpointStore interface {
	ListEndpoints(ctx context.Context) ([]model.Endpoint, error)
	UpsertEndpoints(ctx context.Context, eps []model.Endpoint) (int64, error)
	SaveEndpointStats(ctx context.Context, ep model.Endpoint) error
	ResetEndpoint(ctx context.Context, id int64) error
}

// PostgresStore implements EndpointStore over proxy_endpoints.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a store backed by pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ListEndpoints returns every endpoint, active or not, in id order.
func (s *PostgresStore) ListEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, protocol, host, port, COALESCE(username, ''), COALESCE(password, ''),
			is_active, success_rate, total_requests, failed_requests, last_used_at
		FROM proxy_endpoints ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "proxypool: list endpoints")
	}
	defer rows.Close()

	var out []model.Endpoint
	for rows.Next() {
		var ep model.Endpoint
		if err := rows.Scan(&ep.ID, &ep.Protocol, &ep.Host, &ep.Port, &ep.Username, &ep.Password,
			&ep.IsActive, &ep.SuccessRate, &ep.TotalRequests, &ep.FailedRequests, &ep.LastUsedAt); err != nil {
			return nil, eris.Wrap(err, "proxypool: scan endpoint")
		}
		out = append(out, ep)
	}
	return out, eris.Wrap(rows.Err(), "proxypool: iterate endpoints")
}

// UpsertEndpoints bulk-loads endpoints. Existing endpoints keep their health
// counters and only have their credentials refreshed.
func (s *PostgresStore) UpsertEndpoints(ctx context.Context, eps []model.Endpoint) (int64, error) {
	rows := make([][]any, len(eps))
	for i, ep := range eps {
		rows[i] = []any{ep.Protocol, ep.Host, ep.Port, ep.Username, ep.Password}
	}
	n, err := db.BulkInsert(ctx, s.pool, db.BulkConfig{
		Table:        "proxy_endpoints",
		Columns:      []string{"protocol", "host", "port", "username", "password"},
		ConflictKeys: []string{"protocol", "host", "port"},
		UpdateCols:   []string{"username", "password"},
	}, rows)
	return n, eris.Wrap(err, "proxypool: upsert endpoints")
}

// SaveEndpointStats writes the health counters of one endpoint. It never
// reactivates a row and skips writes older than the stored counters.
func (s *PostgresStore) SaveEndpointStats(ctx context.Context, ep model.Endpoint) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE proxy_endpoints
		SET is_active = is_active AND $1, success_rate = $2, total_requests = $3,
			failed_requests = $4, last_used_at = $5
		WHERE id = $6 AND total_requests <= $3`,
		ep.IsActive, ep.SuccessRate, ep.TotalRequests, ep.FailedRequests, ep.LastUsedAt, ep.ID)
	return eris.Wrapf(err, "proxypool: save stats for %d", ep.ID)
}

// ResetEndpoint reactivates an endpoint and clears its counters.
func (s *PostgresStore) ResetEndpoint(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proxy_endpoints
		SET is_active = true, success_rate = 100, total_requests = 0, failed_requests = 0
		WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "proxypool: reset %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrEndpointNotFound, "proxypool: reset %d", id)
	}
	return nil
}
