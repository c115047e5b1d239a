package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/db"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// Query is a normalized identity lookup against one layer.
type Query struct {
	// Handles maps platform to normalized handle.
	Handles map[model.Platform]string
	// Email is lower-cased; empty skips the email predicate.
	Email string
	// MatchURLContains enables the stored-URL substring predicate.
	MatchURLContains bool
	// ExcludeID drops one record from the result, used when reconciling a
	// record against its own layer.
	ExcludeID int64
}

func (q Query) empty() bool {
	return len(q.Handles) == 0 && q.Email == ""
}

// Layer is one independently populated account store.
type Layer interface {
	Name() model.Layer
	Find(ctx context.Context, q Query) ([]model.DuplicateMatch, error)
}

// SnapshotWriter persists a detection snapshot onto a record of its layer.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, id int64, snap model.DetectionSnapshot) error
}

// PostgresLayer queries one table sharing the
// (platform, handle, profile_url, email, country) shape.
type PostgresLayer struct {
	pool      db.Pool
	layer     model.Layer
	table     string
	hasStatus bool
	snapshots bool
}

// NewCandidateLayer returns the admitted candidate store layer.
func NewCandidateLayer(pool db.Pool) *PostgresLayer {
	return &PostgresLayer{pool: pool, layer: model.LayerCandidate, table: "candidates"}
}

// NewProspectLayer returns the provisional prospect store layer.
func NewProspectLayer(pool db.Pool) *PostgresLayer {
	return &PostgresLayer{pool: pool, layer: model.LayerProspect, table: "prospects", snapshots: true}
}

// NewApplicationLayer returns the inbound application store layer.
func NewApplicationLayer(pool db.Pool) *PostgresLayer {
	return &PostgresLayer{pool: pool, layer: model.LayerApplication, table: "applications", hasStatus: true, snapshots: true}
}

// Name returns the layer tag.
func (l *PostgresLayer) Name() model.Layer {
	return l.layer
}

// buildQuery renders the predicate disjunction for q.
func (l *PostgresLayer) buildQuery(q Query) (string, []any) {
	var (
		preds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, p := range sortedPlatforms(q.Handles) {
		pp := arg(string(p))
		hp := arg(q.Handles[p])
		// Stored handles may carry a leading @ or a whole profile URL.
		match := "ltrim(lower(handle), '@') = " + hp
		if q.MatchURLContains {
			match += " OR strpos(lower(COALESCE(handle, '')), " + hp + ") > 0" +
				" OR strpos(lower(COALESCE(profile_url, '')), " + hp + ") > 0"
		}
		preds = append(preds, fmt.Sprintf("(platform = %s AND (%s))", pp, match))
	}
	if q.Email != "" {
		preds = append(preds, "lower(email) = "+arg(q.Email))
	}

	status := "''"
	if l.hasStatus {
		status = "status"
	}
	sql := fmt.Sprintf(
		`SELECT id, platform, COALESCE(handle, ''), COALESCE(profile_url, ''), COALESCE(email, ''), COALESCE(country, ''), %s
		FROM %s WHERE (%s)`,
		status, l.table, strings.Join(preds, " OR "))
	if q.ExcludeID > 0 {
		sql += " AND id <> " + arg(q.ExcludeID)
	}
	sql += " ORDER BY id"
	return sql, args
}

// Find returns every record in the layer matching q.
func (l *PostgresLayer) Find(ctx context.Context, q Query) ([]model.DuplicateMatch, error) {
	if q.empty() {
		return nil, nil
	}
	sql, args := l.buildQuery(q)
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: query %s", l.table)
	}
	defer rows.Close()

	var out []model.DuplicateMatch
	for rows.Next() {
		var (
			m          model.DuplicateMatch
			platform   string
			profileURL string
		)
		if err := rows.Scan(&m.RecordID, &platform, &m.Handle, &profileURL, &m.Email, &m.Country, &m.Status); err != nil {
			return nil, eris.Wrapf(err, "reconcile: scan %s", l.table)
		}
		m.Layer = l.layer
		m.Platform = model.Platform(platform)
		m.Basis = basis(q, m, profileURL)
		out = append(out, m)
	}
	return out, eris.Wrapf(rows.Err(), "reconcile: iterate %s", l.table)
}

// WriteSnapshot stores the detection snapshot on a prospect or application.
func (l *PostgresLayer) WriteSnapshot(ctx context.Context, id int64, snap model.DetectionSnapshot) error {
	if !l.snapshots {
		return eris.Errorf("reconcile: %s records carry no detection snapshot", l.layer)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "reconcile: marshal snapshot")
	}
	_, err = l.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET duplicate_snapshot = $2 WHERE id = $1`, l.table), id, data)
	return eris.Wrapf(err, "reconcile: write snapshot on %s %d", l.table, id)
}

// basis classifies why a row matched: handle equality wins over a stored
// handle or URL containing the handle, which wins over email.
func basis(q Query, m model.DuplicateMatch, profileURL string) model.MatchBasis {
	if h, ok := q.Handles[m.Platform]; ok {
		stored := strings.ToLower(m.Handle)
		if strings.TrimLeft(stored, "@") == h {
			return model.MatchHandle
		}
		if q.MatchURLContains && (strings.Contains(stored, h) || strings.Contains(strings.ToLower(profileURL), h)) {
			return model.MatchURLContains
		}
	}
	return model.MatchEmail
}

func sortedPlatforms(handles map[model.Platform]string) []model.Platform {
	out := make([]model.Platform, 0, len(handles))
	for _, p := range model.Platforms {
		if _, ok := handles[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
