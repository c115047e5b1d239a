package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/acquisition-cli/internal/discovery"
	"github.com/sells-group/acquisition-cli/internal/fetcher"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run and inspect creator acquisition",
	Long:  "Start discovery runs and enrichment batches, import handle listings, check duplicates and inspect run progress.",
}

// -- discover run --

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery until the target count or the phase inputs are exhausted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := runConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "discovery")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.RunDiscovery(ctx, req)
		if run != nil {
			if perr := printJSON(os.Stdout, run); perr != nil {
				return perr
			}
		}
		return eris.Wrap(err, "discover run")
	},
}

func runConfigFromFlags(cmd *cobra.Command) (model.RunConfig, error) {
	f := cmd.Flags()
	platforms, _ := f.GetStringSlice("platform")
	countries, _ := f.GetStringSlice("country")
	tags, _ := f.GetStringSlice("tag")
	keywords, _ := f.GetStringSlice("keyword")
	locations, _ := f.GetStringSlice("location")
	sources, _ := f.GetStringSlice("source")
	target, _ := f.GetInt("target")
	minFollowers, _ := f.GetInt("min-followers")
	maxFollowers, _ := f.GetInt("max-followers")
	minDelay, _ := f.GetInt("min-delay-ms")
	maxDelay, _ := f.GetInt("max-delay-ms")
	seeds, _ := f.GetInt("seed-sample")

	req := model.RunConfig{
		Countries:    countries,
		Tags:         tags,
		Keywords:     keywords,
		TargetCount:  target,
		MinFollowers: minFollowers,
		MaxFollowers: maxFollowers,
		Pacing:       model.PacingConfig{MinDelayMs: minDelay, MaxDelayMs: maxDelay},
		Chain:        model.ChainConfig{SeedSample: seeds},
	}
	for _, p := range platforms {
		req.Platforms = append(req.Platforms, model.Platform(strings.ToLower(p)))
	}
	for _, l := range locations {
		loc, err := parseLocation(l)
		if err != nil {
			return req, err
		}
		req.Locations = append(req.Locations, loc)
	}
	for _, s := range sources {
		req.ExternalSources = append(req.ExternalSources, model.ExternalSource{URL: s})
	}
	return req, nil
}

// parseLocation reads "id" or "id:COUNTRY".
func parseLocation(raw string) (model.Location, error) {
	id, country, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if id == "" {
		return model.Location{}, eris.Errorf("invalid location %q", raw)
	}
	return model.Location{ID: id, Country: strings.ToUpper(country)}, nil
}

// -- discover enrich --

var discoverEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Re-fetch profile data for stored candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f := cmd.Flags()
		platform, _ := f.GetString("platform")
		country, _ := f.GetString("country")
		source, _ := f.GetString("source")
		ids, _ := f.GetInt64Slice("id")
		batch, _ := f.GetInt("batch-size")
		req := discovery.EnrichmentRequest{
			Platform:     model.Platform(strings.ToLower(platform)),
			Country:      country,
			Source:       source,
			CandidateIDs: ids,
			BatchSize:    batch,
		}
		if f.Changed("skip-private") {
			v, _ := f.GetBool("skip-private")
			req.SkipPrivate = &v
		}
		if f.Changed("only-missing") {
			v, _ := f.GetBool("only-missing")
			req.OnlyMissingData = &v
		}

		env, err := initEnv(ctx, "discovery")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.RunEnrichment(ctx, req)
		if run != nil {
			if perr := printJSON(os.Stdout, run); perr != nil {
				return perr
			}
		}
		return eris.Wrap(err, "discover enrich")
	},
}

// -- discover import --

var discoverImportCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import handles or profile URLs from a CSV, TSV, JSON or XLSX listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()
		format, _ := f.GetString("format")
		column, _ := f.GetString("column")
		platform, _ := f.GetString("platform")
		country, _ := f.GetString("country")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		values, err := fetcher.ReadListing(ctx, env.Listings, args[0], fetcher.ListingOptions{
			Format: fetcher.Format(format),
			Column: column,
		})
		if err != nil {
			return eris.Wrap(err, "discover import: read listing")
		}

		res, err := env.Service.ImportHandles(ctx, reconcile.ImportRequest{
			Values:   values,
			Platform: model.Platform(strings.ToLower(platform)),
			Country:  country,
		})
		if err != nil {
			return eris.Wrap(err, "discover import")
		}
		formatImportResult(os.Stdout, len(values), res)
		return nil
	},
}

// -- discover status --

var discoverStatusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show one run with its attempts, or list recent runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			run, err := env.Service.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "discover status")
			}
			attempts, err := env.Service.ListAttempts(ctx, run.ID, 0)
			if err != nil {
				return eris.Wrap(err, "discover status")
			}
			formatRunDetail(os.Stdout, run, attempts)
			return nil
		}

		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := env.Service.ListRuns(ctx, tracker.RunFilter{
			Status: model.RunStatus(status),
			Kind:   model.RunKind(kind),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "discover status")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- discover stats --

var discoverStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show candidate and attempt totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		platform, _ := cmd.Flags().GetString("platform")
		country, _ := cmd.Flags().GetString("country")
		source, _ := cmd.Flags().GetString("source")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Service.GetStats(ctx, model.StatsScope{
			Platform: model.Platform(strings.ToLower(platform)),
			Country:  strings.ToUpper(country),
			Source:   source,
		})
		if err != nil {
			return eris.Wrap(err, "discover stats")
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

// -- discover duplicates --

var discoverDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find stored records matching a handle set or email",
	Long:  "Queries the candidate, prospect and application stores. With --origin-id the identity belongs to an existing prospect or application record, which is excluded from the results and receives a detection snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		obs := model.ObservedIdentity{Handles: map[model.Platform]string{}}
		for _, p := range model.Platforms {
			if h, _ := cmd.Flags().GetString(string(p)); h != "" {
				obs.Handles[p] = h
				if obs.Primary == "" {
					obs.Primary = p
				}
			}
		}
		obs.Email, _ = cmd.Flags().GetString("email")
		if len(obs.Handles) == 0 && obs.Email == "" {
			return eris.New("discover duplicates: pass at least one handle or --email")
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		var set *model.DuplicateSet
		originID, _ := cmd.Flags().GetInt64("origin-id")
		if originID != 0 {
			layer, _ := cmd.Flags().GetString("origin-layer")
			origin := reconcile.Origin{Layer: model.Layer(strings.ToLower(layer)), ID: originID}
			set, err = env.Service.DetectDuplicates(ctx, origin, obs, false)
		} else {
			set, err = env.Service.FindDuplicates(ctx, obs)
		}
		if err != nil {
			return eris.Wrap(err, "discover duplicates")
		}
		return printJSON(os.Stdout, set)
	},
}

// -- discover cancel --

var discoverCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Stop a running run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.CancelRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "discover cancel")
		}
		fmt.Fprintf(os.Stdout, "Run %s cancelled.\n", args[0])
		return nil
	},
}

func init() {
	rf := discoverRunCmd.Flags()
	rf.StringSlice("platform", nil, "platforms to search (instagram, tiktok, youtube)")
	rf.StringSlice("country", nil, "target countries; the first is assigned to new candidates")
	rf.StringSlice("tag", nil, "tags to search")
	rf.StringSlice("keyword", nil, "keywords to search after tags")
	rf.StringSlice("location", nil, "location pages as id or id:COUNTRY")
	rf.StringSlice("source", nil, "external listing URLs")
	rf.Int("target", 0, "stop after this many candidates (default from config)")
	rf.Int("min-followers", 0, "deactivate candidates below this follower count")
	rf.Int("max-followers", 0, "deactivate candidates above this follower count")
	rf.Int("min-delay-ms", 0, "minimum delay between fetches")
	rf.Int("max-delay-ms", 0, "maximum delay between fetches")
	rf.Int("seed-sample", 0, "existing candidates to expand through followers")

	ef := discoverEnrichCmd.Flags()
	ef.String("platform", "", "only candidates on this platform")
	ef.String("country", "", "only candidates in this country")
	ef.String("source", "", "only candidates from this source")
	ef.Int64Slice("id", nil, "explicit candidate ids")
	ef.Int("batch-size", 0, "maximum candidates to process (default from config)")
	ef.Bool("skip-private", true, "check privacy first and skip private accounts")
	ef.Bool("only-missing", true, "only candidates without profile data")

	imf := discoverImportCmd.Flags()
	imf.String("format", "", "csv, tsv, json or xlsx (default from extension)")
	imf.String("column", "", "header column or JSON field holding the handle")
	imf.String("platform", "instagram", "platform for bare handles")
	imf.String("country", "", "country assigned to imported candidates")

	sf := discoverStatusCmd.Flags()
	sf.String("status", "", "filter by status (running, completed, failed)")
	sf.String("kind", "", "filter by kind (discovery, enrichment)")
	sf.Int("limit", 20, "maximum runs to list")

	stf := discoverStatsCmd.Flags()
	stf.String("platform", "", "scope to a platform")
	stf.String("country", "", "scope to a country")
	stf.String("source", "", "scope to a source")

	df := discoverDuplicatesCmd.Flags()
	for _, p := range model.Platforms {
		df.String(string(p), "", string(p)+" handle or profile URL")
	}
	df.String("email", "", "email address")
	df.String("origin-layer", string(model.LayerApplication), "layer of the originating record (prospect or application)")
	df.Int64("origin-id", 0, "originating record id; stores a detection snapshot on it")

	discoverCmd.AddCommand(
		discoverRunCmd,
		discoverEnrichCmd,
		discoverImportCmd,
		discoverStatusCmd,
		discoverStatsCmd,
		discoverDuplicatesCmd,
		discoverCancelCmd,
	)
	rootCmd.AddCommand(discoverCmd)
}
