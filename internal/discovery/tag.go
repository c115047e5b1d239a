package discovery

import (
	"context"
	"strings"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

type searchTerm struct {
	term   string
	source string
}

// tagPhase walks the top and recent pages of every tag, then every keyword.
type tagPhase struct {
	client platform.Client
}

func (p *tagPhase) name() string      { return "tag" }
func (p *tagPhase) sources() []string { return []string{model.SourceTag, model.SourceKeyword} }

func (p *tagPhase) quota(q model.PhaseQuotas) model.PhaseQuota { return q.Tag }

func (p *tagPhase) run(ctx context.Context, rs *runState) error {
	terms := searchTerms(rs.cfg.Tags, model.SourceTag)
	terms = append(terms, searchTerms(rs.cfg.Keywords, model.SourceKeyword)...)

	for i, t := range terms {
		if i > 0 {
			if err := rs.pacer.Pause(ctx, rs.cfg.Pacing.TermDelay()); err != nil {
				return err
			}
		}
		for _, pl := range rs.cfg.Platforms {
			for _, sort := range []platform.Sort{platform.SortTop, platform.SortRecent} {
				if err := rs.beforeFetch(ctx); err != nil {
					return err
				}
				page, err := p.client.TagPage(ctx, pl, t.term, sort)
				if err != nil {
					if err := rs.fetchFailed(ctx, pl, "#"+t.term, err); err != nil {
						return err
					}
					continue
				}
				if err := rs.fetched(ctx); err != nil {
					return err
				}
				for _, acc := range page.Accounts {
					if err := rs.offer(ctx, offer{
						Platform: pl,
						Handle:   acc.Handle,
						Email:    acc.Email,
						Source:   t.source,
					}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func searchTerms(raw []string, source string) []searchTerm {
	seen := make(map[string]struct{}, len(raw))
	out := make([]searchTerm, 0, len(raw))
	for _, r := range raw {
		t := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(r), "#")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, searchTerm{term: t, source: source})
	}
	return out
}
