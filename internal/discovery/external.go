package discovery

import (
	"context"
	"slices"

	"github.com/sells-group/acquisition-cli/internal/fetcher"
	"github.com/sells-group/acquisition-cli/internal/handle"
	"github.com/sells-group/acquisition-cli/internal/model"
)

// externalPhase reads handle listings published outside the target
// platforms (CSV, TSV, JSON or XLSX over HTTP, FTP or local files).
type externalPhase struct {
	listings fetcher.Fetcher
}

func (p *externalPhase) name() string      { return "external" }
func (p *externalPhase) sources() []string { return []string{model.SourceExternal} }

func (p *externalPhase) quota(q model.PhaseQuotas) model.PhaseQuota { return q.External }

func (p *externalPhase) run(ctx context.Context, rs *runState) error {
	for _, src := range rs.cfg.ExternalSources {
		if err := rs.beforeFetch(ctx); err != nil {
			return err
		}
		fallback := src.Platform
		if fallback == "" && len(rs.cfg.Platforms) > 0 {
			fallback = rs.cfg.Platforms[0]
		}

		values, err := fetcher.ReadListing(ctx, p.listings, src.URL, fetcher.ListingOptions{
			Format: fetcher.Format(src.Format),
			Column: src.Column,
		})
		if err != nil {
			if err := rs.fetchFailed(ctx, fallback, src.URL, err); err != nil {
				return err
			}
			continue
		}

		for _, v := range values {
			pl, ok := handle.DetectPlatform(v)
			if !ok {
				pl = fallback
			}
			if !slices.Contains(rs.cfg.Platforms, pl) {
				continue
			}
			if err := rs.offer(ctx, offer{
				Platform: pl,
				Handle:   v,
				Country:  src.Country,
				Source:   model.SourceExternal,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
