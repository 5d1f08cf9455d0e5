package main

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octobees/leads-discovery/internal/app"
	"github.com/octobees/leads-discovery/internal/config"
	"github.com/octobees/leads-discovery/internal/dto"
	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/credits"
	"github.com/octobees/leads-discovery/internal/source"
)

type runOptions struct {
	csv         string
	params      dto.SearchParams
	principal   string
	credits     int
	unmetered   bool
	searchURL   string
	identityURL string
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one brief and print its events as JSON lines",
		Long: `Runs a single brief through the discovery cascade and writes every
progress event, then the terminal event, to stdout as one JSON object per line.

Examples:
  # Directory only
  discover run --csv contacts.csv --types playlist_curator --markets ZA --depth quick

  # Directory plus a search gateway, billed to a local ledger
  discover run --csv contacts.csv --types dj --markets US,GB --search-url http://localhost:9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrief(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.csv, "csv", "", "directory CSV file (defaults to DIRECTORY_CSV)")
	f.StringVar(&opts.params.ContactTypes, "types", "", "comma-separated contact types")
	f.StringVar(&opts.params.Markets, "markets", "", "comma-separated market codes")
	f.StringVar(&opts.params.Genre, "genre", "", "genre filter")
	f.StringVar(&opts.params.SearchDepth, "depth", "", "quick, deep or full (default deep)")
	f.StringVar(&opts.params.TargetCount, "target", "", "number of contacts wanted")
	f.StringVar(&opts.params.Query, "query", "", "free-text search term")
	f.StringVar(&opts.principal, "principal", "cli", "principal the run is billed to")
	f.IntVar(&opts.credits, "credits", -1, "starting balance of the local ledger (defaults to DEFAULT_CREDITS)")
	f.BoolVar(&opts.unmetered, "unmetered", false, "skip credit checks")
	f.StringVar(&opts.searchURL, "search-url", "", "search gateway base URL (defaults to SEARCH_PROVIDER_URL)")
	f.StringVar(&opts.identityURL, "identity-url", "", "identity gateway base URL (defaults to ENRICHMENT_PROVIDER_URL)")
	return cmd
}

func runBrief(cmd *cobra.Command, base *config.Config, opts runOptions) error {
	cfg := *base
	if opts.csv != "" {
		cfg.DirectoryCSV = opts.csv
	}
	if opts.searchURL != "" {
		cfg.SearchProviderURL = opts.searchURL
	}
	if opts.identityURL != "" {
		cfg.EnrichmentProviderURL = opts.identityURL
	}

	brief, err := opts.params.Brief(dto.SearchLimits{
		DefaultTargetCount: cfg.DefaultTargetCount,
		MaxTargetCount:     cfg.MaxTargetCount,
	})
	if err != nil {
		return err
	}

	var sources app.Sources
	if cfg.DirectoryCSV != "" {
		dir, err := source.LoadDirectoryFile(cfg.DirectoryCSV)
		if err != nil {
			return eris.Wrap(err, "run: load directory")
		}
		zap.L().Info("directory loaded", zap.String("path", cfg.DirectoryCSV), zap.Int("entries", dir.Len()))
		sources.Directory = dir
	}
	sources.Search, sources.Identity, err = app.ProviderSources(&cfg, nil)
	if err != nil {
		return eris.Wrap(err, "run: configure providers")
	}
	if sources.Directory == nil && sources.Search == nil && sources.Identity == nil {
		return eris.New("run: no sources configured, pass --csv or a provider url")
	}

	balance := opts.credits
	if balance < 0 {
		balance = cfg.DefaultCredits
	}
	gate := credits.NewGate(credits.NewMemoryLedger(balance))
	orchestrator := app.NewOrchestrator(&cfg, sources, gate, zap.L())

	principal := entity.Principal{ID: strings.TrimSpace(opts.principal), Exempt: opts.unmetered}
	enc := json.NewEncoder(cmd.OutOrStdout())
	var failure string
	for ev := range orchestrator.Stream(cmd.Context(), brief, principal) {
		if err := enc.Encode(dto.Frame(ev)); err != nil {
			return eris.Wrap(err, "run: write event")
		}
		if ev.Kind == entity.EventError {
			failure = ev.Message
		}
	}
	if failure != "" {
		return eris.New(failure)
	}
	return nil
}
