package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/internal/fetch"
	"github.com/jgoulah/meterfetch/internal/scraper"
	"github.com/jgoulah/meterfetch/internal/series"
	"github.com/jgoulah/meterfetch/pkg/models"
)

var (
	fetchStart        string
	fetchEnd          string
	fetchMaxCalls     int
	fetchNoCacheWrite bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [endpoint]",
	Short: "Fetch usage data for an endpoint",
	Long: `Retrieves raw data for the requested date range, rebuilds a regular series
and stores it in the local SQLite database.

Available endpoints: consumption_load_curve, daily_consumption, daily_consumption_max_power`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "First date to fetch (YYYY-MM-DD, required)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "Last date to fetch (YYYY-MM-DD, default: today)")
	fetchCmd.Flags().IntVar(&fetchMaxCalls, "max-calls", 0, "Load curve API call budget (default: max_api_calls from config)")
	fetchCmd.Flags().BoolVar(&fetchNoCacheWrite, "no-cache-write", false, "Read cached responses but do not store new ones")
	fetchCmd.MarkFlagRequired("start")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Validate endpoint against the authorized list
	kind, err := models.ParseEndpointKind(args[0])
	if err != nil {
		return err
	}

	// Parse date range (end defaults to today)
	end := fetchEnd
	if end == "" {
		end = time.Now().Format(models.DateLayout)
	}
	window, err := models.ParseDateWindow(fetchStart, end)
	if err != nil {
		return err
	}

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Credentials must be present before any network call
	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("%w (set them in %s or %s/%s)", err, getConfigPath(), config.EnvUsagePointID, config.EnvAccessToken)
	}
	log := newLogger(cfg)

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// Open raw response cache
	rawCache, release, err := openCache(cfg, db)
	if err != nil {
		return err
	}
	defer release()

	var opts []fetch.Option
	if fetchNoCacheWrite {
		opts = append(opts, fetch.WithoutCacheWrites())
	}
	client := scraper.NewClient(cfg.API.BaseURL, cfg.API.RequestsPerSecond, log)
	orch := fetch.New(client, rawCache, log, opts...)

	req := models.FetchRequest{
		UsagePointID: cfg.API.UsagePointID,
		AccessToken:  cfg.API.AccessToken,
		Endpoint:     kind,
		Window:       window,
	}

	// Fetch raw payloads, cache first
	ctx := cmd.Context()
	var payloads []models.RawPayload
	if kind.IsDaily() {
		fmt.Printf("Fetching %s from %s...\n", kind, window)
		payload, err := orch.FetchDaily(ctx, req)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", kind, err)
		}
		payloads = append(payloads, payload)
	} else {
		maxCalls := fetchMaxCalls
		if maxCalls <= 0 {
			maxCalls = cfg.GetMaxAPICalls()
		}
		fmt.Printf("Fetching %s from %s (at most %d API calls)...\n", kind, window, maxCalls)
		result, err := orch.FetchLoadCurve(ctx, req, maxCalls)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", kind, err)
		}
		fmt.Printf("✓ %d windows (%d API calls, %d cached): %s\n",
			len(result.Windows), result.NetworkCalls, result.CacheHits, result.StopReason)
		if result.Partial() {
			fmt.Printf("⚠ Partial result: %v\n", result.Failure)
		}
		if len(result.Payloads) == 0 && result.Partial() {
			return fmt.Errorf("fetching %s: %w", kind, result.Failure)
		}
		payloads = result.Payloads
	}

	// Rebuild a regular series; no usable payload is fatal
	recOpts := []series.Option{series.WithTariff(cfg.GetTariff())}
	if len(cfg.Exclude) > 0 {
		recOpts = append(recOpts, series.WithExclude(cfg.Exclude...))
	}
	rec := series.NewReconstructor(log, recOpts...)
	ts, err := rec.Reconstruct(payloads, kind.Granularity())
	if err != nil {
		return fmt.Errorf("rebuilding series: %w", err)
	}

	// Store series (duplicates will be ignored by UNIQUE constraint)
	inserted, err := db.InsertSeries(ts.UsageData(req.UsagePointID, kind))
	if err != nil {
		return fmt.Errorf("storing series: %w", err)
	}

	log.Info("fetch complete",
		slog.String("endpoint", kind.String()),
		slog.Int("rows", ts.Len()),
		slog.Int("inserted", inserted),
	)

	fmt.Printf("✓ %d %s rows from %s to %s (%d gap-filled)\n",
		ts.Len(), ts.Granularity, ts.Start().Format(time.DateTime), ts.End().Format(time.DateTime), ts.FilledCount())
	fmt.Printf("✓ %d new rows stored (duplicates automatically skipped by database)\n", inserted)
	fmt.Printf("  Total consumption: %.0f\n", ts.TotalConsumption())
	if ts.Granularity == models.Hourly {
		cost := ts.TotalPrice().Round(2)
		fmt.Printf("  Estimated cost: %s (tariff %s/kWh)\n", cost.StringFixed(2), decimal.NewFromFloat(cfg.GetTariff()).String())
	}

	return nil
}
