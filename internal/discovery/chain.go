package discovery

import (
	"context"
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

// chainPhase expands the graph from a sample of existing candidates in the
// primary country: their followers, then the followers of a random sample of
// those. The frontier is capped by seed sample, per-seed followers and
// second-hop sample.
type chainPhase struct {
	client   platform.Client
	accounts account.Store
	shuffle  func(n int, swap func(i, j int))
}

func (p *chainPhase) name() string      { return "chain" }
func (p *chainPhase) sources() []string { return []string{model.SourceChain} }

func (p *chainPhase) quota(q model.PhaseQuotas) model.PhaseQuota { return q.Chain }

func (p *chainPhase) run(ctx context.Context, rs *runState) error {
	cc := rs.cfg.Chain
	secondHopLimit := cc.SecondHopFollowers
	if secondHopLimit <= 0 {
		secondHopLimit = cc.FollowersPerSeed
	}

	for _, pl := range rs.cfg.Platforms {
		seeds, err := p.accounts.SampleSeeds(ctx, pl, rs.cfg.PrimaryCountry(), cc.SeedSample)
		if err != nil {
			return eris.Wrapf(err, "discovery: sample %s seeds", pl)
		}
		for _, seed := range seeds {
			firstHop, err := p.expand(ctx, rs, pl, seed.Handle, cc.FollowersPerSeed)
			if err != nil {
				return err
			}
			for _, h := range p.sample(firstHop, cc.SecondHopSample) {
				if _, err := p.expand(ctx, rs, pl, h, secondHopLimit); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// expand offers the followers of one account and returns the public ones for
// the next hop.
func (p *chainPhase) expand(ctx context.Context, rs *runState, pl model.Platform, h string, limit int) ([]string, error) {
	if err := rs.beforeFetch(ctx); err != nil {
		return nil, err
	}
	page, err := p.client.Followers(ctx, pl, h, limit)
	if err != nil {
		return nil, rs.fetchFailed(ctx, pl, "@"+h+"/followers", err)
	}
	if err := rs.fetched(ctx); err != nil {
		return nil, err
	}

	var public []string
	for _, acc := range page.Accounts {
		if err := rs.offer(ctx, offer{
			Platform: pl,
			Handle:   acc.Handle,
			Email:    acc.Email,
			Source:   model.SourceChain,
		}); err != nil {
			return nil, err
		}
		if !acc.IsPrivate {
			public = append(public, acc.Handle)
		}
	}
	return public, nil
}

func (p *chainPhase) sample(handles []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(handles) <= n {
		return handles
	}
	out := append([]string(nil), handles...)
	shuffle := p.shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}
