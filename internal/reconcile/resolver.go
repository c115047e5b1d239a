// Package reconcile matches newly observed identities against the candidate,
// prospect and application stores and admits new candidates.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acquisition-cli/internal/handle"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// Options tunes matching policy.
type Options struct {
	// MatchURLContains also matches stored URLs that contain the handle.
	MatchURLContains bool
}

// Resolver queries every layer independently and concatenates the results in
// precedence order. It never ranks, merges or deletes records.
type Resolver struct {
	layers []Layer
	opts   Options
	now    func() time.Time
}

// NewResolver creates a resolver. Layers must be given in precedence order:
// candidates, prospects, applications.
func NewResolver(opts Options, layers ...Layer) *Resolver {
	return &Resolver{layers: layers, opts: opts, now: time.Now}
}

// query normalizes an observed identity into a layer query.
func (r *Resolver) query(obs model.ObservedIdentity) Query {
	q := Query{
		Handles:          make(map[model.Platform]string, len(obs.Handles)),
		Email:            strings.ToLower(strings.TrimSpace(obs.Email)),
		MatchURLContains: r.opts.MatchURLContains,
	}
	for p, raw := range obs.Handles {
		if h := handle.Normalize(raw); handle.Valid(h) {
			q.Handles[p] = h
		}
	}
	return q
}

// FindDuplicates returns every match for obs across all layers.
func (r *Resolver) FindDuplicates(ctx context.Context, obs model.ObservedIdentity) (*model.DuplicateSet, error) {
	return r.find(ctx, r.query(obs), "")
}

func (r *Resolver) find(ctx context.Context, q Query, originLayer model.Layer) (*model.DuplicateSet, error) {
	set := &model.DuplicateSet{}
	if q.empty() {
		return set, nil
	}

	results := make([][]model.DuplicateMatch, len(r.layers))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range r.layers {
		lq := q
		if l.Name() != originLayer {
			lq.ExcludeID = 0
		}
		g.Go(func() error {
			matches, err := l.Find(gctx, lq)
			if err != nil {
				return eris.Wrapf(err, "reconcile: layer %s", l.Name())
			}
			results[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, matches := range results {
		set.Matches = append(set.Matches, matches...)
	}
	return set, nil
}

// Origin identifies the record a detection runs on behalf of.
type Origin struct {
	Layer model.Layer
	ID    int64
}

// Detect reconciles an existing record, excluding the record itself, and
// stores the detection snapshot on it when its layer supports one.
func (r *Resolver) Detect(ctx context.Context, origin Origin, obs model.ObservedIdentity, auto bool) (*model.DuplicateSet, error) {
	q := r.query(obs)
	q.ExcludeID = origin.ID
	set, err := r.find(ctx, q, origin.Layer)
	if err != nil {
		return nil, err
	}

	for _, l := range r.layers {
		if l.Name() != origin.Layer {
			continue
		}
		w, ok := l.(SnapshotWriter)
		if !ok || set.Empty() || origin.Layer == model.LayerCandidate {
			break
		}
		if err := w.WriteSnapshot(ctx, origin.ID, set.Snapshot(r.now().UTC(), auto)); err != nil {
			// The set is still useful to the caller.
			zap.L().Warn("reconcile: write detection snapshot",
				zap.String("layer", string(origin.Layer)),
				zap.Int64("id", origin.ID),
				zap.Error(err),
			)
		}
		break
	}
	return set, nil
}
