package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfriman/daybrief/internal/build"
	"github.com/mfriman/daybrief/internal/config"
	"github.com/mfriman/daybrief/internal/digest"
	"github.com/mfriman/daybrief/internal/fetch"
	"github.com/mfriman/daybrief/internal/llm"
	"github.com/mfriman/daybrief/internal/logging"
	"github.com/mfriman/daybrief/internal/metrics"
	"github.com/mfriman/daybrief/internal/orchestrate"
	"github.com/mfriman/daybrief/internal/reason"
	"github.com/mfriman/daybrief/internal/report"
	"github.com/mfriman/daybrief/internal/retry"
	"github.com/mfriman/daybrief/internal/server"
	"github.com/mfriman/daybrief/internal/store"
	"github.com/mfriman/daybrief/internal/validate"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "daybrief",
	Short:   "Personal daily digest",
	Long:    "Daybrief fetches weather, sports, tech, and market data concurrently, summarizes each with an LLM, validates the result, and publishes a daily digest.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("daybrief", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/daybrief/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set your location, teams, feeds, API keys, and LLM provider.")
		return nil
	},
}

// --- run command ---

var (
	dryRun      bool
	runDeadline time.Duration
	runPolicy   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate today's digest: fetch, summarize, validate, publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(cfg.Logging.Level)

		deadline := cfg.Run.Deadline.Std()
		if runDeadline > 0 {
			deadline = runDeadline
		}
		policyName := cfg.Run.PublishPolicy
		if runPolicy != "" {
			policyName = runPolicy
		}
		policy, err := build.ParsePolicy(policyName)
		if err != nil {
			return err
		}

		registry, err := buildRegistry(cfg, log)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		runID := digest.NewRunID(now)
		rec := metrics.NewRecorder(runID, now)

		provider := llm.CreateProvider(
			cfg.Reasoning.Provider, cfg.Reasoning.Model, cfg.Reasoning.OllamaURL,
			cfg.Reasoning.OpenAIModel, cfg.Reasoning.APIKeyEnv, log,
		)
		summarizer := reason.New(provider, cfg.Reasoning.MaxTokens, rec)

		orch := orchestrate.New(registry, summarizer, rec, retryPolicies(cfg), deadline, log)

		log.Info("starting run", "run", runID, "domains", len(registry.Domains()), "deadline", deadline)
		draft := orch.Run(cmd.Context(), runID)

		validator := validate.New(registry.Domains(), validate.Config{
			WarnAfter:         cfg.Validation.FreshnessWarn.Std(),
			ErrorAfter:        cfg.Validation.FreshnessError.Std(),
			MinNarrativeChars: cfg.Validation.MinNarrativeChars,
			TrustedSources:    cfg.TrustedSources(),
		}, rec)
		rep := validator.Validate(draft, time.Now().UTC())
		snap := rec.Snapshot(time.Now().UTC())

		if dryRun {
			// No store, no artifacts: render what would be published.
			dig := &digest.Digest{
				RunID:        draft.RunID,
				CreatedAt:    draft.CreatedAt,
				Sections:     draft.Sections,
				QualityScore: rep.QualityScore,
				Degraded:     !rep.Passed,
			}
			fmt.Print(report.RenderMarkdown(dig, rep))
			fmt.Printf("\nDry run: %d/%d sections, quality %.2f, %d error(s), %d warning(s). Nothing was saved.\n",
				draft.Completeness(), len(registry.Domains()), rep.QualityScore, rep.Errors(), rep.Warnings())
			return nil
		}

		db, err := openStore(log)
		if err != nil {
			return err
		}
		defer db.Close()

		prev := -1
		last, err := db.LatestPublished()
		if err != nil {
			return fmt.Errorf("loading previous run: %w", err)
		}
		if last != nil {
			prev = last.Completeness
		}

		dig, buildErr := build.New(policy).Build(draft, rep, prev)

		published := buildErr == nil
		note := ""
		if buildErr != nil {
			note = buildErr.Error()
		}
		if err := db.SaveRun(draft, rep, snap, published, note); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}

		writer := report.NewWriter(cfg.GetSiteDir(), log)

		if buildErr != nil {
			log.Warn("digest withheld", "run", runID, "reason", buildErr)
			// The published artifacts stay; only the metrics reflect this run.
			if err := writer.WriteMetrics(snap); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}
			fmt.Printf("Digest withheld: %v\n", buildErr)
			fmt.Printf("Run %s recorded. Previous digest stays published.\n", runID)
			return nil
		}

		if err := writer.Write(dig, rep, snap); err != nil {
			return fmt.Errorf("writing artifacts: %w", err)
		}

		status := "published"
		if dig.Degraded {
			status = "published degraded"
		}
		fmt.Printf("Digest %s: %d/%d sections, quality %.2f.\n",
			status, draft.Completeness(), len(registry.Domains()), rep.QualityScore)
		fmt.Printf("Artifacts in %s. Run 'daybrief serve' to browse.\n", cfg.GetSiteDir())
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run without saving anything, print the digest")
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "Override the run deadline (e.g. 30s)")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Override the publish policy (no-regress, always-latest)")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run and aggregate statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(quietLog())
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(store.HistoryFilter{Limit: 1})
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs yet. Start with: daybrief run")
			return nil
		}

		latest := runs[0]
		fmt.Printf("Latest run: %s\n", latest.ID)
		fmt.Printf("  Created: %s\n", latest.CreatedAt)
		fmt.Printf("  Outcome: %s\n", outcomeLabel(latest))
		fmt.Printf("  Quality: %.2f\n", latest.QualityScore)
		fmt.Printf("  Duration: %.1fs\n", float64(latest.DurationMs)/1000)

		sections, err := db.GetSections(latest.ID)
		if err != nil {
			return fmt.Errorf("loading sections: %w", err)
		}
		fmt.Println("  Sections:")
		for _, sec := range sections {
			detail := ""
			if sec.Error != nil {
				detail = " (" + *sec.Error + ")"
			}
			fmt.Printf("    %-8s %s%s\n", sec.Domain, sec.Status, detail)
		}

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nHistory:")
		fmt.Printf("  Runs: %d (%d published, %d degraded, %d withheld)\n",
			stats.TotalRuns, stats.PublishedRuns, stats.DegradedRuns, stats.RejectedRuns)
		fmt.Printf("  Average quality: %.2f\n", stats.AvgQuality)
		fmt.Printf("  LLM usage: %d tokens, $%.4f estimated\n", stats.TotalTokens, stats.TotalCostUSD)
		return nil
	},
}

// --- history command ---

var (
	histSince      string
	histPublished  bool
	histDegraded   bool
	histMinQuality float64
	histDomainStat string
	histLimit      uint64
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.HistoryFilter{
			Since:         histSince,
			PublishedOnly: histPublished,
			DegradedOnly:  histDegraded,
			MinQuality:    histMinQuality,
			Limit:         histLimit,
		}
		if histDomainStat != "" {
			domain, status, ok := strings.Cut(histDomainStat, "=")
			if !ok {
				return fmt.Errorf("invalid --domain-status %q, want domain=status", histDomainStat)
			}
			if _, err := digest.ParseDomain(domain); err != nil {
				return err
			}
			filter.Domain = domain
			filter.Status = status
		}

		db, err := openStore(quietLog())
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(filter)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No matching runs.")
			return nil
		}

		fmt.Printf("%-22s  %-20s  %-7s  %-8s  %s\n", "RUN", "CREATED", "QUALITY", "SECTIONS", "OUTCOME")
		for _, r := range runs {
			fmt.Printf("%-22s  %-20s  %-7.2f  %-8d  %s\n",
				r.ID, r.CreatedAt, r.QualityScore, r.Completeness, outcomeLabel(r))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&histSince, "since", "", "Only runs created on or after this date (YYYY-MM-DD)")
	historyCmd.Flags().BoolVar(&histPublished, "published", false, "Only published runs")
	historyCmd.Flags().BoolVar(&histDegraded, "degraded", false, "Only degraded runs")
	historyCmd.Flags().Float64Var(&histMinQuality, "min-quality", 0, "Only runs at or above this quality score")
	historyCmd.Flags().StringVar(&histDomainStat, "domain-status", "", "Only runs where a domain had a status, e.g. market=failed")
	historyCmd.Flags().Uint64Var(&histLimit, "limit", 20, "Maximum number of runs to list")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(cfg.Logging.Level)

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}

		db, err := openStore(log)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- wiring helpers ---

func buildRegistry(cfg *config.Config, log *slog.Logger) (*fetch.Registry, error) {
	registry := fetch.NewRegistry()
	for _, d := range cfg.DomainList() {
		var f fetch.Fetcher
		switch d {
		case digest.DomainWeather:
			f = fetch.NewWeatherFetcher(cfg.Weather.Location, cfg.Weather.Units, cfg.Weather.APIKeyEnv)
		case digest.DomainSports:
			teams := make([]fetch.TeamConfig, 0, len(cfg.Sports.Teams))
			for _, t := range cfg.Sports.Teams {
				teams = append(teams, fetch.TeamConfig{Name: t.Name, League: t.League})
			}
			f = fetch.NewSportsFetcher(teams, cfg.Sports.APIKeyEnv, log)
		case digest.DomainTech:
			f = fetch.NewTechFetcher(cfg.Tech.Feeds, cfg.Tech.Topics, cfg.Tech.MaxStories, cfg.Tech.FetchTopStory, log)
		case digest.DomainMarket:
			f = fetch.NewMarketFetcher(cfg.Market.Symbols, cfg.Market.APIKeyEnv)
		default:
			return nil, fmt.Errorf("no fetcher for domain %q", d)
		}
		if err := registry.Register(f); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func retryPolicies(cfg *config.Config) orchestrate.Policies {
	return orchestrate.Policies{
		Fetch: retry.Policy{
			MaxAttempts:       cfg.Retry.Fetch.MaxAttempts,
			InitialDelay:      cfg.Retry.Fetch.InitialDelay.Std(),
			BackoffBase:       cfg.Retry.Fetch.BackoffBase,
			Jitter:            true,
			PerAttemptTimeout: cfg.Retry.Fetch.PerAttemptTimeout.Std(),
			Retryable:         fetch.Retryable,
		},
		Reason: retry.Policy{
			MaxAttempts:       cfg.Retry.Reason.MaxAttempts,
			InitialDelay:      cfg.Retry.Reason.InitialDelay.Std(),
			BackoffBase:       cfg.Retry.Reason.BackoffBase,
			Jitter:            true,
			PerAttemptTimeout: cfg.Retry.Reason.PerAttemptTimeout.Std(),
			Retryable:         reason.Retryable,
		},
	}
}

func outcomeLabel(r store.Run) string {
	switch {
	case r.Published && r.Degraded:
		return "published (degraded)"
	case r.Published:
		return "published"
	default:
		note := "withheld"
		if r.PublishNote != nil {
			note += ": " + *r.PublishNote
		}
		return note
	}
}

func openStore(log *slog.Logger) (*store.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "daybrief.db"), log)
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
