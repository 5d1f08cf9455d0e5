package discovery

import "github.com/octobees/leads-discovery/internal/source"

// Default tier names.
const (
	TierDirectory  = "directory"
	TierWebSearch  = "web_search"
	TierEnrichment = "enrichment"
)

// Tier is one escalation step. Adapters of a tier run concurrently; tiers
// run one after another in declaration order.
type Tier struct {
	Name     string
	Adapters []source.Adapter
	// CostWeight is debited from non-exempt principals before the tier runs.
	// Zero means free.
	CostWeight int
	// MinAcceptableYield is the number of new distinct contacts the tier is
	// expected to add. Two consecutive executed tiers under their yield stop
	// the run.
	MinAcceptableYield int
	// Level is the escalation step the tier belongs to: 1 runs for every
	// depth, 2 from deep, 3 and above only for full. Zero means the tier's
	// 1-based position in the cascade.
	Level int
}

// Costed reports whether running the tier consumes credits.
func (t Tier) Costed() bool { return t.CostWeight > 0 }

// TierConfig lists the adapters and costs of the standard cascade.
type TierConfig struct {
	Directory          []source.Adapter
	WebSearch          []source.Adapter
	Enrichment         []source.Adapter
	SearchCost         int
	EnrichmentCost     int
	MinAcceptableYield int
}

// DefaultTiers builds the directory → web search → enrichment cascade.
// Tiers without adapters are left out; the others keep their level so a
// missing tier never pulls a later one into a shallower depth.
func DefaultTiers(cfg TierConfig) []Tier {
	candidates := []Tier{
		{Name: TierDirectory, Adapters: cfg.Directory, Level: 1},
		{Name: TierWebSearch, Adapters: cfg.WebSearch, CostWeight: cfg.SearchCost, Level: 2},
		{Name: TierEnrichment, Adapters: cfg.Enrichment, CostWeight: cfg.EnrichmentCost, Level: 3},
	}
	tiers := make([]Tier, 0, len(candidates))
	for _, t := range candidates {
		if len(t.Adapters) == 0 {
			continue
		}
		if t.CostWeight < 0 {
			t.CostWeight = 0
		}
		t.MinAcceptableYield = cfg.MinAcceptableYield
		tiers = append(tiers, t)
	}
	return tiers
}
