package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/litscout/litscout/internal/config"
	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/export"
	"github.com/litscout/litscout/internal/observability"
	"github.com/litscout/litscout/internal/optimizer"
	"github.com/litscout/litscout/internal/pipeline"
	"github.com/litscout/litscout/internal/sources"
	"github.com/litscout/litscout/internal/sources/biorxiv"
	"github.com/litscout/litscout/internal/sources/pubmed"
	"github.com/litscout/litscout/internal/sources/scholar"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a retrieval across the configured literature sources",
	Long: `Search dispatches the query to every requested source concurrently,
deduplicates the merged results by normalized title (first seen wins), and
writes an incremental JSON snapshot after each source settles. The final set
is exported as an .xlsx workbook unless --no-xlsx is given.

A source that fails or times out never disturbs the others; its status is
reported at the end. The command exits non-zero only when no source produced
usable results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringP("query", "q", "", "research query (alternative to the positional argument)")
	searchCmd.Flags().StringSliceP("sources", "s", nil, "sources to search (pubmed, biorxiv, scholar; default: all enabled)")
	searchCmd.Flags().Int("pubmed-count", 0, "maximum PubMed results (0 uses the configured default)")
	searchCmd.Flags().Int("biorxiv-count", 0, "maximum bioRxiv results (0 uses the configured default)")
	searchCmd.Flags().Int("scholar-count", 0, "maximum Google Scholar results (0 uses the configured default)")
	searchCmd.Flags().Bool("no-optimize", false, "skip query expansion and search the raw query only")
	searchCmd.Flags().Duration("source-timeout", 0, "per-source wall-clock budget (0 uses the configured default)")
	searchCmd.Flags().String("output", "", "output directory for snapshots and workbooks")
	searchCmd.Flags().Bool("no-xlsx", false, "skip the Excel workbook export")
	searchCmd.Flags().Bool("json", false, "print the full run report as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = args[0]
	}
	if query == "" {
		return fmt.Errorf("a query is required, either as an argument or via --query")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(logger, cfg.Metrics)
	}

	registry := buildRegistry(cfg)
	opt := buildOptimizer(cfg, logger, metrics)
	snapshots := export.NewSnapshotStore(cfg.Pipeline.OutputDir)

	p := pipeline.New(pipeline.Config{
		Registry:     registry,
		Optimizer:    opt,
		Snapshots:    snapshots,
		Logger:       logger,
		Metrics:      metrics,
		SourceBudget: cfg.Pipeline.SourceBudget,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, err := buildRunRequest(cmd, query)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, req)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printReport(report)
	}

	if noXLSX, _ := cmd.Flags().GetBool("no-xlsx"); !noXLSX && len(report.Records) > 0 {
		writer := export.NewExcelWriter(cfg.Pipeline.OutputDir)
		path, err := writer.Write(report.Records)
		if err != nil {
			logger.Error().Err(err).Msg("workbook export failed")
		} else {
			fmt.Printf("Workbook written to %s\n", path)
		}
	}

	if !report.Succeeded() {
		return fmt.Errorf("no source returned usable results")
	}
	return nil
}

// applyFlagOverrides lets command-line flags win over file and environment
// configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.Pipeline.OutputDir = out
	}
	if budget, _ := cmd.Flags().GetDuration("source-timeout"); budget > 0 {
		cfg.Pipeline.SourceBudget = budget
	}
	if noOptimize, _ := cmd.Flags().GetBool("no-optimize"); noOptimize {
		cfg.Optimizer.Enabled = false
	}
}

// buildRegistry wires the configured source adapters.
func buildRegistry(cfg *config.Config) *sources.Registry {
	registry := sources.NewRegistry()

	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.Sources.PubMed.BaseURL,
		Email:      cfg.Sources.PubMed.Email,
		APIKey:     cfg.Sources.PubMed.APIKey,
		Timeout:    cfg.Sources.PubMed.Timeout,
		RateLimit:  cfg.Sources.PubMed.RateLimit,
		MaxResults: cfg.Sources.PubMed.MaxResults,
		Enabled:    cfg.Sources.PubMed.Enabled,
	}))

	registry.Register(biorxiv.New(biorxiv.Config{
		BaseURL:    cfg.Sources.BioRxiv.BaseURL,
		Server:     cfg.Sources.BioRxiv.Server,
		Timeout:    cfg.Sources.BioRxiv.Timeout,
		RateLimit:  cfg.Sources.BioRxiv.RateLimit,
		MaxResults: cfg.Sources.BioRxiv.MaxResults,
		Window:     time.Duration(cfg.Sources.BioRxiv.WindowDays) * 24 * time.Hour,
		MaxPages:   cfg.Sources.BioRxiv.MaxPages,
		Enabled:    cfg.Sources.BioRxiv.Enabled,
	}))

	registry.Register(scholar.New(scholar.Config{
		BaseURL:     cfg.Sources.Scholar.BaseURL,
		APIKey:      cfg.Sources.Scholar.APIKey,
		Timeout:     cfg.Sources.Scholar.Timeout,
		MinInterval: cfg.Sources.Scholar.MinInterval,
		MaxResults:  cfg.Sources.Scholar.MaxResults,
		Enabled:     cfg.Sources.Scholar.Enabled,
	}))

	return registry
}

// buildOptimizer wires the query expander, or a raw-only optimizer when
// expansion is disabled or unconfigured.
func buildOptimizer(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *optimizer.Optimizer {
	opts := []optimizer.Option{optimizer.WithMaxVariants(cfg.Optimizer.MaxVariants)}
	if metrics != nil {
		opts = append(opts, optimizer.WithMetrics(metrics))
	}

	var generator optimizer.SynonymGenerator
	switch {
	case !cfg.Optimizer.Enabled:
	case cfg.Optimizer.APIKey == "":
		logger.Warn().Msg("optimizer enabled but LITSCOUT_OPTIMIZER_API_KEY is not set, searching raw queries only")
	default:
		generator = optimizer.NewDeepSeekProvider(optimizer.DeepSeekConfig{
			APIKey:      cfg.Optimizer.APIKey,
			Model:       cfg.Optimizer.Model,
			BaseURL:     cfg.Optimizer.BaseURL,
			Temperature: cfg.Optimizer.Temperature,
			Timeout:     cfg.Optimizer.Timeout,
			MaxRetries:  cfg.Optimizer.MaxRetries,
		})
	}

	return optimizer.New(generator, logger, opts...)
}

// buildRunRequest translates flags into a pipeline request.
func buildRunRequest(cmd *cobra.Command, query string) (pipeline.RunRequest, error) {
	req := pipeline.RunRequest{
		Query:  query,
		Counts: map[domain.SourceType]int{},
	}

	names, _ := cmd.Flags().GetStringSlice("sources")
	for _, name := range names {
		st, ok := domain.ParseSourceType(name)
		if !ok {
			return req, fmt.Errorf("unknown source %q (expected pubmed, biorxiv, or scholar)", name)
		}
		req.Sources = append(req.Sources, st)
	}

	if n, _ := cmd.Flags().GetInt("pubmed-count"); n > 0 {
		req.Counts[domain.SourceTypePubMed] = n
	}
	if n, _ := cmd.Flags().GetInt("biorxiv-count"); n > 0 {
		req.Counts[domain.SourceTypeBioRxiv] = n
	}
	if n, _ := cmd.Flags().GetInt("scholar-count"); n > 0 {
		req.Counts[domain.SourceTypeScholar] = n
	}

	noOptimize, _ := cmd.Flags().GetBool("no-optimize")
	req.Optimize = !noOptimize

	return req, nil
}

// printReport writes the per-source status lines and totals to stdout.
func printReport(report *pipeline.RunReport) {
	for _, s := range report.Statuses {
		switch s.Outcome {
		case pipeline.OutcomeOK:
			fmt.Printf("%-8s ok       %d records (%d new) in %s\n",
				s.Source, s.Fetched, s.Added, s.Duration.Round(time.Millisecond))
		case pipeline.OutcomePartial:
			fmt.Printf("%-8s partial  %d records (%d new): %s\n",
				s.Source, s.Fetched, s.Added, s.Message)
		case pipeline.OutcomeError:
			fmt.Printf("%-8s error    %s: %s\n", s.Source, s.Kind, s.Message)
		}
	}

	fmt.Printf("Total: %d unique records for %q\n", len(report.Records), report.Query)
	if report.SnapshotPath != "" {
		fmt.Printf("Snapshot written to %s\n", report.SnapshotPath)
	}
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the run.
func serveMetrics(logger zerolog.Logger, cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info().Str("addr", addr).Str("path", cfg.Path).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics server stopped")
	}
}
