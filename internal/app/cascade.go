// Package app assembles the discovery cascade from configuration so the API
// server and the CLI run the same tiers.
package app

import (
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/leads-discovery/internal/config"
	"github.com/octobees/leads-discovery/internal/service/discovery"
	"github.com/octobees/leads-discovery/internal/source"
)

// Sources are the backends the cascade's adapters read from. Nil members
// leave their tier out.
type Sources struct {
	Directory source.DirectoryReader
	Search    source.SearchClient
	Identity  source.IdentityResolver
}

// ProviderSources builds HTTP clients for the configured provider gateways.
// client may be nil to let each gateway pick its own authenticated client.
func ProviderSources(cfg *config.Config, client *http.Client) (source.SearchClient, source.IdentityResolver, error) {
	var (
		search   source.SearchClient
		identity source.IdentityResolver
	)
	if cfg.SearchProviderURL != "" {
		pc, err := source.NewProviderClient(client, cfg.SearchProviderURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "search provider")
		}
		search = source.NewHTTPSearchClient(pc)
	}
	if cfg.EnrichmentProviderURL != "" {
		pc, err := source.NewProviderClient(client, cfg.EnrichmentProviderURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "enrichment provider")
		}
		identity = source.NewHTTPIdentityResolver(pc)
	}
	return search, identity, nil
}

// Cascade maps the configured sources onto the standard tiers.
func Cascade(cfg *config.Config, src Sources) []discovery.Tier {
	tc := discovery.TierConfig{
		SearchCost:         cfg.SearchCost,
		EnrichmentCost:     cfg.EnrichmentCost,
		MinAcceptableYield: cfg.MinAcceptableYield,
	}
	if src.Directory != nil {
		tc.Directory = []source.Adapter{source.NewDirectoryAdapter(src.Directory)}
	}
	if src.Search != nil {
		tc.WebSearch = []source.Adapter{source.NewWebSearchAdapter(src.Search, "", 0, 0)}
	}
	if src.Identity != nil {
		var limiter *rate.Limiter
		if cfg.EnrichmentRate.Requests > 0 {
			limiter = rate.NewLimiter(rate.Every(cfg.EnrichmentRate.Every()), cfg.EnrichmentRate.Requests)
		}
		tc.Enrichment = []source.Adapter{source.NewEnrichmentAdapter(src.Identity, limiter, "")}
	}
	return discovery.DefaultTiers(tc)
}

// NewOrchestrator builds the orchestrator the binaries share.
func NewOrchestrator(cfg *config.Config, src Sources, gate discovery.CreditGate, logger *zap.Logger) *discovery.Orchestrator {
	tiers := Cascade(cfg, src)
	names := make([]string, 0, len(tiers))
	for _, t := range tiers {
		names = append(names, t.Name)
	}
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("discovery cascade configured", zap.Strings("tiers", names))

	return discovery.NewOrchestrator(tiers, gate, discovery.Config{AdapterTimeout: cfg.AdapterTimeout}, discovery.WithLogger(logger))
}
