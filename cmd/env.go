package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/account"
	"github.com/sells-group/acquisition-cli/internal/config"
	"github.com/sells-group/acquisition-cli/internal/discovery"
	"github.com/sells-group/acquisition-cli/internal/fetcher"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/proxypool"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/resilience"
	"github.com/sells-group/acquisition-cli/internal/store"
	"github.com/sells-group/acquisition-cli/internal/tracker"
	"github.com/sells-group/acquisition-cli/pkg/platform"
)

// appEnv holds the wired components shared by every command.
type appEnv struct {
	DB       *store.Postgres
	Runs     *tracker.PostgresStore
	Tracker  *tracker.Tracker
	Accounts *account.PostgresStore
	Pool     *proxypool.Manager
	Resolver *reconcile.Resolver
	Service  *discovery.Service
	Listings fetcher.Fetcher
}

func initStore(ctx context.Context) (*store.Postgres, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newListingFetcher builds the listing router. Only CLI modes may read local
// files; the HTTP server fetches remote listings only.
func newListingFetcher(mode string) fetcher.Fetcher {
	timeout := time.Duration(cfg.Fetcher.TimeoutSecs) * time.Second
	var opts []fetcher.RouterOption
	if mode != "serve" {
		opts = append(opts, fetcher.WithLocalFiles())
	}
	return fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetcher.UserAgent,
			Timeout:    timeout,
			MaxRetries: cfg.Fetcher.MaxRetries,
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
		opts...,
	)
}

// initEnv validates configuration for mode and wires the store, the endpoint
// pool, reconciliation, the platform client and the discovery service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	pg := st.Pool()
	env := &appEnv{
		DB:       st,
		Runs:     tracker.NewPostgresStore(pg),
		Accounts: account.NewPostgresStore(pg),
		Pool:     proxypool.NewManager(proxypool.NewPostgresStore(pg), proxypool.OptionsFromConfig(cfg.Pool)),
		Listings: newListingFetcher(mode),
	}
	env.Tracker = tracker.New(env.Runs)

	if err := env.Pool.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := seedEndpoints(ctx, env.Pool, cfg.Pool.Endpoints); err != nil {
		_ = st.Close()
		return nil, err
	}

	env.Resolver = reconcile.NewResolver(
		reconcile.Options{MatchURLContains: cfg.Discovery.MatchURLContains},
		reconcile.NewCandidateLayer(pg),
		reconcile.NewProspectLayer(pg),
		reconcile.NewApplicationLayer(pg),
	)

	retry, breaker := resilience.FromPlatformConfig(cfg.Platform)
	client := platform.NewClient(cfg.Platform.Key,
		platform.WithBaseURL(cfg.Platform.BaseURL),
		platform.WithSelector(env.Pool),
		platform.WithRateLimit(cfg.Platform.RequestsPerSecond, cfg.Platform.Burst),
		platform.WithRetry(retry),
		platform.WithBreakers(resilience.NewBreakerSet(breaker)),
		platform.WithTimeout(time.Duration(cfg.Platform.TimeoutSecs)*time.Second),
		platform.WithUserAgent(cfg.Platform.UserAgent),
	)

	defaults := discovery.Defaults{
		Discovery:  cfg.Discovery,
		Enrichment: cfg.Enrichment,
	}
	if cfg.Discovery.TargetsFile != "" {
		targets, err := config.LoadTargets(cfg.Discovery.TargetsFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		defaults.Targets = targets
	}

	env.Service = discovery.NewService(env.Tracker, discovery.Deps{
		Admitter: reconcile.NewAdmitter(env.Resolver, env.Accounts),
		Accounts: env.Accounts,
		Client:   client,
		Listings: env.Listings,
	}, env.Resolver, defaults)

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.Int("active_endpoints", env.Pool.ActiveCount()),
	)
	return env, nil
}

// seedEndpoints adds endpoints listed in configuration. Existing endpoints
// keep their persisted counters.
func seedEndpoints(ctx context.Context, pool *proxypool.Manager, raw []string) error {
	if len(raw) == 0 {
		return nil
	}
	eps := make([]model.Endpoint, 0, len(raw))
	for _, r := range raw {
		ep, err := proxypool.ParseEndpoint(r)
		if err != nil {
			return err
		}
		eps = append(eps, ep)
	}
	return pool.Add(ctx, eps...)
}

// Close interrupts background runs and closes the database.
func (e *appEnv) Close() {
	if e.Service != nil {
		e.Service.Close()
	}
	if e.DB != nil {
		_ = e.DB.Close()
	}
}
