package source

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/octobees/leads-discovery/internal/entity"
)

const defaultEnrichmentWorkers = 4

// ErrIdentityNotFound is returned by resolvers that have no record for a query.
var ErrIdentityNotFound = eris.New("identity not found")

// IdentityQuery is what an identity-resolution provider is asked about.
type IdentityQuery struct {
	Name    string         `json:"name,omitempty"`
	Email   string         `json:"email,omitempty"`
	Company string         `json:"company,omitempty"`
	Country string         `json:"country,omitempty"`
	Socials entity.Socials `json:"socials,omitempty"`
}

// Identity is the provider's answer. Name is deliberately absent: enrichment
// never renames a lead.
type Identity struct {
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Title     string         `json:"title,omitempty"`
	Company   string         `json:"company,omitempty"`
	Country   string         `json:"country,omitempty"`
	Socials   entity.Socials `json:"socials,omitempty"`
	Followers string         `json:"followers,omitempty"`
}

// IdentityResolver looks up additional contact details for a partial identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, query IdentityQuery) (*Identity, error)
}

// EnrichmentAdapter fills missing details on already-discovered contacts.
type EnrichmentAdapter struct {
	resolver IdentityResolver
	limiter  *rate.Limiter
	name     string
	workers  int
}

// NewEnrichmentAdapter builds an enrichment adapter. A nil limiter means unpaced.
func NewEnrichmentAdapter(resolver IdentityResolver, limiter *rate.Limiter, name string) *EnrichmentAdapter {
	if strings.TrimSpace(name) == "" {
		name = "enrichment"
	}
	return &EnrichmentAdapter{resolver: resolver, limiter: limiter, name: name, workers: defaultEnrichmentWorkers}
}

// Name implements Adapter.
func (a *EnrichmentAdapter) Name() string { return a.name }

// Enrich resolves one seed. Seeds carrying neither an e-mail nor a company
// are returned unchanged with ok=false and no provider call is made. The
// result only fills fields the seed left empty.
func (a *EnrichmentAdapter) Enrich(ctx context.Context, seed entity.RawContact) (entity.RawContact, bool, error) {
	if strings.TrimSpace(seed.Email) == "" && strings.TrimSpace(seed.Company) == "" {
		return seed, false, nil
	}
	if a.resolver == nil {
		return seed, false, eris.New("identity resolver is not configured")
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return seed, false, eris.Wrap(err, "wait for enrichment rate limit")
		}
	}

	found, err := a.resolver.Resolve(ctx, IdentityQuery{
		Name:    seed.Name,
		Email:   seed.Email,
		Company: seed.Company,
		Country: seed.Country,
		Socials: seed.Socials.Clone(),
	})
	if err != nil {
		if eris.Is(err, ErrIdentityNotFound) {
			return seed, false, nil
		}
		return seed, false, err
	}
	if found == nil {
		return seed, false, nil
	}

	out := seed
	out.Socials = seed.Socials.Clone()
	out.Source = a.name
	fillEmpty(&out.Email, found.Email)
	fillEmpty(&out.Phone, found.Phone)
	fillEmpty(&out.Title, found.Title)
	fillEmpty(&out.Company, found.Company)
	fillEmpty(&out.Country, found.Country)
	if found.Followers != "" {
		out.FollowersRaw = found.Followers
	}
	for platform, handle := range found.Socials {
		if strings.TrimSpace(handle) == "" || out.Socials[platform] != "" {
			continue
		}
		if out.Socials == nil {
			out.Socials = entity.Socials{}
		}
		out.Socials[platform] = handle
	}
	return out, true, nil
}

// Discover enriches every eligible seed. Lookups run with bounded
// concurrency; the adapter fails only when every attempted lookup failed.
func (a *EnrichmentAdapter) Discover(ctx context.Context, req Request) ([]entity.RawContact, error) {
	results := make([]*entity.RawContact, len(req.Seeds))

	var (
		mu        sync.Mutex
		attempted int
		failures  int
		lastErr   error
	)

	g := new(errgroup.Group)
	g.SetLimit(a.workers)
	for i, seed := range req.Seeds {
		raw := seed.Raw()
		if strings.TrimSpace(raw.Email) == "" && strings.TrimSpace(raw.Company) == "" {
			continue
		}
		attempted++
		g.Go(func() error {
			enriched, ok, err := a.Enrich(ctx, raw)
			if err != nil {
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				zap.L().Debug("enrichment lookup failed",
					zap.String("source", a.name),
					zap.String("identity", seed.IdentityKey),
					zap.Error(err),
				)
				return nil
			}
			if ok {
				results[i] = &enriched
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if attempted > 0 && failures == attempted {
		return nil, eris.Wrapf(lastErr, "all %d enrichment lookups failed", failures)
	}

	var out []entity.RawContact
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func fillEmpty(dst *string, value string) {
	if strings.TrimSpace(*dst) == "" && strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}
