// Command pipeline operates the 13F institutional-holdings pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/config"
	"holdings13f/pkg/core/edgar"
	"holdings13f/pkg/core/fetch"
	"holdings13f/pkg/core/llm"
	"holdings13f/pkg/core/pipeline"
	"holdings13f/pkg/core/resolve"
	"holdings13f/pkg/core/sector"
	"holdings13f/pkg/core/store"
)

var (
	startYear   int
	endYear     int
	targetsPath string
	reportDir   string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, assuming environment variables are set")
	}

	root := &cobra.Command{
		Use:   "pipeline",
		Short: "SEC 13F institutional holdings pipeline",
	}
	root.PersistentFlags().IntVar(&startYear, "start-year", time.Now().Year()-1, "earliest report year to process")
	root.PersistentFlags().IntVar(&endYear, "end-year", time.Now().Year(), "latest report year to process")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process mandatory targets, then discover and process new 13F filers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context())
		},
	}
	runCmd.Flags().StringVar(&targetsPath, "targets", "targets.yaml", "mandatory targets YAML file")
	runCmd.Flags().StringVar(&reportDir, "report-dir", "reports", "directory for run reports")

	companyCmd := &cobra.Command{
		Use:   "company <cik>",
		Short: "Process a single company by CIK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompany(cmd.Context(), args[0])
		},
	}

	discoverCmd := &cobra.Command{
		Use:   "discover <count>",
		Short: "Discover active 13F filers without processing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var count int
			if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil || count <= 0 {
				return fmt.Errorf("invalid count %q", args[0])
			}
			return runDiscover(cmd.Context(), count)
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh-tickers",
		Short: "Force-refresh the SEC ticker reference index cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefreshTickers(cmd.Context())
		},
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup <ticker>",
		Short: "Look a registrant up by ticker in the SEC reference index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd.Context(), args[0])
		},
	}

	root.AddCommand(runCmd, companyCmd, discoverCmd, refreshCmd, lookupCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps bundles everything the subcommands wire up.
type deps struct {
	cfg          *config.Config
	logger       *zap.Logger
	orchestrator *pipeline.Orchestrator
	tickers      *edgar.TickerIndex
	discovery    *edgar.Discovery
}

func buildDeps(ctx context.Context) (*deps, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}

	if err := store.InitDB(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	secClient := fetch.NewClient(logger,
		fetch.WithRateLimit(5, 1),
		fetch.WithTimeout(30*time.Second),
	)
	// Sector lookups own their single-retry-on-429 behavior; the shared
	// retry loop would stack a second layer of backoff on top of it.
	factsClient := fetch.NewClient(logger,
		fetch.WithRetryPolicy(fetch.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Second}),
		fetch.WithRateLimit(10, 3),
		fetch.WithTimeout(10*time.Second),
	)

	tickers := edgar.NewTickerIndex(secClient, cfg.TickerIndexPath(), logger)
	if err := tickers.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load ticker index: %w", err)
	}

	// Discovery scans the full registrant universe; the ticker index only
	// covers listed issuers, which excludes most 13F managers.
	registrants := edgar.NewRegistrantList(secClient, cfg.RegistrantListPath(), logger)
	if err := registrants.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load registrant list: %w", err)
	}

	subs := edgar.NewSubmissionsClient(secClient, logger)
	discovery := edgar.NewDiscovery(registrants, subs, logger)
	scanner := edgar.NewIndexScanner(secClient, logger)
	parser := edgar.NewInfoTableParser(secClient, logger)

	tickerCache := cache.NewFileBacked[string](cfg.TickerCachePath())
	if err := tickerCache.LoadFromDisk(); err != nil {
		logger.Warn("failed to load ticker cache", zap.Error(err))
	}
	sectorCache := cache.NewFileBacked[sector.Facts](cfg.SectorCachePath())
	if err := sectorCache.LoadFromDisk(); err != nil {
		logger.Warn("failed to load sector cache", zap.Error(err))
	}

	resolvers := []resolve.Resolver{
		&resolve.IndexExactResolver{Index: tickers},
		&resolve.IndexSubstringResolver{Index: tickers},
		&resolve.IndexWordOverlapResolver{Index: tickers},
	}
	batchers := []resolve.BatchResolver{
		resolve.NewMappingAPIResolver(factsClient, cfg.OpenFIGIAPIKey, logger),
	}
	if cfg.GeminiAPIKey != "" {
		batchers = append(batchers, resolve.NewAIResolver(&llm.GeminiProvider{}, logger))
	}
	cascade := resolve.NewCascade(resolvers, batchers, tickerCache, logger)

	factsAPI := &sector.HTTPFactsAPI{
		Client:  factsClient,
		BaseURL: cfg.FactsAPIURL,
		APIKey:  cfg.FactsAPIKey,
	}
	enricher := sector.NewEnricher(factsAPI, sectorCache, logger)

	orchestrator := pipeline.NewOrchestrator(
		subs, scanner, parser, cascade, enricher, discovery,
		store.NewFilerRepo(), store.NewHoldingsRepo(), logger,
	)

	cleanup := func() {
		if err := tickerCache.Persist(); err != nil {
			logger.Warn("failed to persist ticker cache", zap.Error(err))
		}
		store.Close()
		_ = logger.Sync()
	}

	return &deps{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		tickers:      tickers,
		discovery:    discovery,
	}, cleanup, nil
}

func runAll(ctx context.Context) error {
	d, cleanup, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	targets, err := config.LoadTargets(targetsPath)
	if err != nil {
		return err
	}

	result := d.orchestrator.ProcessAllCompanies(ctx, startYear, endYear, targets)
	if err := pipeline.WriteReport(result, reportDir); err != nil {
		d.logger.Warn("failed to write run report", zap.Error(err))
	}

	fmt.Println(result.Message)
	if !result.Success {
		return fmt.Errorf("run failed: all %d companies errored", result.Stats.Total)
	}
	return nil
}

func runCompany(ctx context.Context, cik string) error {
	d, cleanup, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := d.orchestrator.ProcessSingleCompany(ctx, cik, startYear, endYear, "")
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d filings processed, %d skipped\n", res.Company.FilerName, res.Processed, res.Skipped)
	return nil
}

func runDiscover(ctx context.Context, count int) error {
	d, cleanup, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	filers, err := d.discovery.NextBatch(ctx, count)
	if err != nil {
		return err
	}
	for _, f := range filers {
		fmt.Printf("%s\t%s\n", f.CIK, f.Name)
	}
	fmt.Printf("discovered %d active 13F filers\n", len(filers))
	return nil
}

func runLookup(ctx context.Context, ticker string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	client := fetch.NewClient(logger, fetch.WithRateLimit(5, 1))
	tickers := edgar.NewTickerIndex(client, cfg.TickerIndexPath(), logger)
	if err := tickers.Load(ctx); err != nil {
		return err
	}

	entry, ok := tickers.ByTicker(ticker)
	if !ok {
		return fmt.Errorf("ticker %q not found in the SEC reference index", ticker)
	}
	fmt.Printf("%s\tCIK %d\t%s\n", entry.Ticker, entry.CIK, entry.Title)
	return nil
}

func runRefreshTickers(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	if err := os.Remove(cfg.TickerIndexPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to drop ticker index cache: %w", err)
	}

	client := fetch.NewClient(logger, fetch.WithRateLimit(5, 1))
	tickers := edgar.NewTickerIndex(client, cfg.TickerIndexPath(), logger)
	if err := tickers.Load(ctx); err != nil {
		return err
	}
	fmt.Printf("ticker index refreshed: %d registrants\n", len(tickers.Entries()))
	return nil
}
