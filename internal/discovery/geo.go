package discovery

import (
	"context"

	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

// geoPhase enumerates the accounts posting from each configured location.
// Candidates take the location's country when it has one.
type geoPhase struct {
	client platform.Client
}

func (p *geoPhase) name() string      { return "geo" }
func (p *geoPhase) sources() []string { return []string{model.SourceGeo} }

func (p *geoPhase) quota(q model.PhaseQuotas) model.PhaseQuota { return q.Geo }

func (p *geoPhase) run(ctx context.Context, rs *runState) error {
	for _, loc := range rs.cfg.Locations {
		for _, pl := range rs.cfg.Platforms {
			if err := rs.beforeFetch(ctx); err != nil {
				return err
			}
			page, err := p.client.LocationPage(ctx, pl, loc.ID)
			if err != nil {
				if err := rs.fetchFailed(ctx, pl, "location:"+loc.ID, err); err != nil {
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
					Country:  loc.Country,
					Source:   model.SourceGeo,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
