package reconcile

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/handle"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// Outcome is what admission did with a candidate.
type Outcome int

const (
	// Created means a new candidate row was inserted.
	Created Outcome = iota
	// Reassigned means an existing candidate moved to a different country.
	Reassigned
	// Existing means the candidate was already admitted with the same
	// country and nothing changed.
	Existing
	// Invalid means the handle could not be normalized.
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Reassigned:
		return "reassigned"
	case Existing:
		return "existing"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Admission is the result of admitting one candidate.
type Admission struct {
	Outcome    Outcome
	Candidate  model.Candidate
	Duplicates *model.DuplicateSet
}

// Admitter gates entry into the candidate store.
type Admitter struct {
	resolver *Resolver
	accounts account.Store
}

// NewAdmitter creates an Admitter.
func NewAdmitter(resolver *Resolver, accounts account.Store) *Admitter {
	return &Admitter{resolver: resolver, accounts: accounts}
}

// Resolver returns the resolver used for duplicate checks.
func (a *Admitter) Resolver() *Resolver {
	return a.resolver
}

// Check normalizes c and reconciles it. An exact admitted-store match is
// returned as existing without writing anything.
func (a *Admitter) Check(ctx context.Context, c model.Candidate) (model.Candidate, *model.DuplicateSet, error) {
	c.Handle = handle.Normalize(c.Handle)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Country = strings.ToUpper(strings.TrimSpace(c.Country))
	if !handle.Valid(c.Handle) {
		return c, nil, nil
	}
	set, err := a.resolver.FindDuplicates(ctx, model.ObservedIdentity{
		Primary: c.Platform,
		Handles: map[model.Platform]string{c.Platform: c.Handle},
		Email:   c.Email,
	})
	if err != nil {
		return c, nil, eris.Wrap(err, "reconcile: check")
	}
	return c, set, nil
}

// Admit inserts c unless an admitted candidate with the same platform and
// handle exists. An existing candidate with a different country is
// reassigned; with the same country it is left alone.
func (a *Admitter) Admit(ctx context.Context, c model.Candidate) (Admission, error) {
	c, set, err := a.Check(ctx, c)
	if err != nil {
		return Admission{}, err
	}
	if set == nil {
		return Admission{Outcome: Invalid, Candidate: c}, nil
	}

	if m, ok := set.ExactCandidate(c.Platform, c.Handle); ok {
		return a.existing(ctx, c, m.RecordID, m.Country, set)
	}

	c.Active = true
	created, err := a.accounts.Insert(ctx, &c)
	if err != nil {
		return Admission{}, eris.Wrap(err, "reconcile: admit")
	}
	if !created {
		// Lost a race with a concurrent admission of the same handle.
		stored, err := a.accounts.GetByHandle(ctx, c.Platform, c.Handle)
		if err != nil || stored == nil {
			return Admission{}, eris.Wrapf(err, "reconcile: reload %s/%s", c.Platform, c.Handle)
		}
		return a.existing(ctx, c, stored.ID, stored.Country, set)
	}

	if review := set.ForReview(c.Platform, c.Handle); len(review) > 0 {
		zap.L().Debug("reconcile: admitted with matches for review",
			zap.String("platform", string(c.Platform)),
			zap.String("handle", c.Handle),
			zap.Int("matches", len(review)),
		)
	}
	return Admission{Outcome: Created, Candidate: c, Duplicates: set}, nil
}

func (a *Admitter) existing(ctx context.Context, c model.Candidate, id int64, storedCountry string, set *model.DuplicateSet) (Admission, error) {
	c.ID = id
	if c.Country == "" || strings.EqualFold(storedCountry, c.Country) {
		c.Country = storedCountry
		return Admission{Outcome: Existing, Candidate: c, Duplicates: set}, nil
	}
	if err := a.accounts.UpdateCountry(ctx, id, c.Country); err != nil {
		return Admission{}, eris.Wrap(err, "reconcile: reassign country")
	}
	return Admission{Outcome: Reassigned, Candidate: c, Duplicates: set}, nil
}

// ImportRequest is a bulk admission of externally sourced handles.
type ImportRequest struct {
	Values []string
	// Platform applies to bare handles; URLs carry their own platform.
	Platform model.Platform
	Country  string
	Source   string
}

// Import admits a batch. The second and later occurrences of a handle in the
// batch are dropped; store duplicates follow the Admit country rule; new
// handles are inserted in one bulk write.
func (a *Admitter) Import(ctx context.Context, req ImportRequest) (model.ImportResult, error) {
	var res model.ImportResult
	source := req.Source
	if source == "" {
		source = model.SourceImport
	}

	seen := make(map[string]struct{}, len(req.Values))
	var fresh []model.Candidate
	for _, raw := range req.Values {
		platform := req.Platform
		if p, ok := handle.DetectPlatform(raw); ok {
			platform = p
		}
		if !platform.Valid() {
			res.Invalid++
			continue
		}

		h := handle.Normalize(raw)
		if !handle.Valid(h) {
			res.Invalid++
			continue
		}
		key := string(platform) + "/" + h
		if _, dup := seen[key]; dup {
			res.BatchDuplicatesSkipped++
			continue
		}
		seen[key] = struct{}{}

		c, set, err := a.Check(ctx, model.Candidate{
			Platform: platform,
			Handle:   h,
			Source:   source,
			Country:  req.Country,
		})
		if err != nil {
			return res, err
		}

		if m, ok := set.ExactCandidate(c.Platform, c.Handle); ok {
			adm, err := a.existing(ctx, c, m.RecordID, m.Country, set)
			if err != nil {
				return res, err
			}
			if adm.Outcome == Reassigned {
				res.Updated++
			} else {
				res.StoreDuplicatesSkipped++
			}
			continue
		}

		c.Active = true
		fresh = append(fresh, c)
	}

	if len(fresh) > 0 {
		n, err := a.accounts.InsertBatch(ctx, fresh)
		if err != nil {
			return res, eris.Wrap(err, "reconcile: import")
		}
		res.Created += int(n)
		// Rows skipped by the bulk insert were admitted concurrently.
		res.StoreDuplicatesSkipped += len(fresh) - int(n)
	}

	zap.L().Info("reconcile: import complete",
		zap.String("source", source),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("batch_duplicates", res.BatchDuplicatesSkipped),
		zap.Int("store_duplicates", res.StoreDuplicatesSkipped),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}
