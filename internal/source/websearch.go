package source

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/dedupe"
)

const (
	defaultMaxQueries      = 6
	defaultResultsPerQuery = 10
	defaultQueryWorkers    = 3
)

var (
	snippetEmail     = regexp.MustCompile(`[A-Za-z0-9._%+\-']+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	snippetFollowers = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*\s?[kmb]?)\s+(?:followers|subscribers|listeners)`)
	titleSeparators  = []string{" | ", " - ", " – ", " • ", " (", " @"}
)

// SearchQuery is one keyword query sent to a web-search provider.
type SearchQuery struct {
	Text   string `json:"query"`
	Market string `json:"market,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// SearchResult is one organic hit returned by the provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient issues keyword searches against an external provider.
type SearchClient interface {
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)
}

// WebSearchAdapter turns live keyword searches into raw contacts.
type WebSearchAdapter struct {
	client          SearchClient
	name            string
	maxQueries      int
	resultsPerQuery int
}

// NewWebSearchAdapter builds a live-search adapter.
func NewWebSearchAdapter(client SearchClient, name string, maxQueries, resultsPerQuery int) *WebSearchAdapter {
	if strings.TrimSpace(name) == "" {
		name = "web_search"
	}
	if maxQueries <= 0 {
		maxQueries = defaultMaxQueries
	}
	if resultsPerQuery <= 0 {
		resultsPerQuery = defaultResultsPerQuery
	}
	return &WebSearchAdapter{client: client, name: name, maxQueries: maxQueries, resultsPerQuery: resultsPerQuery}
}

// Name implements Adapter.
func (a *WebSearchAdapter) Name() string { return a.name }

type plannedQuery struct {
	query    SearchQuery
	category string
}

// Discover runs one query per (contact type, market) pair. Individual query
// failures are tolerated; the adapter fails only when every query failed.
func (a *WebSearchAdapter) Discover(ctx context.Context, req Request) ([]entity.RawContact, error) {
	if a.client == nil {
		return nil, eris.New("search client is not configured")
	}

	plan := a.plan(req.Brief)
	results := make([][]entity.RawContact, len(plan))

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	g := new(errgroup.Group)
	g.SetLimit(defaultQueryWorkers)
	for i, pq := range plan {
		g.Go(func() error {
			hits, err := a.client.Search(ctx, pq.query)
			if err != nil {
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				zap.L().Debug("web search query failed",
					zap.String("source", a.name),
					zap.String("query", pq.query.Text),
					zap.Error(err),
				)
				return nil
			}
			mapped := make([]entity.RawContact, 0, len(hits))
			for _, hit := range hits {
				if raw, ok := a.toRaw(hit, pq); ok {
					mapped = append(mapped, raw)
				}
			}
			results[i] = mapped
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plan) > 0 && failures == len(plan) {
		return nil, eris.Wrapf(lastErr, "all %d search queries failed", failures)
	}

	var out []entity.RawContact
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out, nil
}

func (a *WebSearchAdapter) plan(brief entity.SearchBrief) []plannedQuery {
	var plan []plannedQuery
	for _, contactType := range brief.ContactTypes {
		for _, market := range brief.Markets {
			if len(plan) == a.maxQueries {
				return plan
			}
			parts := []string{strings.ReplaceAll(contactType, "_", " ")}
			if brief.Genre != "" {
				parts = append(parts, brief.Genre)
			}
			if brief.Query != "" {
				parts = append(parts, brief.Query)
			}
			parts = append(parts, market, "contact email")
			plan = append(plan, plannedQuery{
				query: SearchQuery{
					Text:   strings.Join(parts, " "),
					Market: market,
					Limit:  a.resultsPerQuery,
				},
				category: contactType,
			})
		}
	}
	return plan
}

// toRaw maps a hit into a raw contact. Generic web pages without an e-mail
// in the snippet carry no usable identity and are skipped.
func (a *WebSearchAdapter) toRaw(hit SearchResult, pq plannedQuery) (entity.RawContact, bool) {
	raw := entity.RawContact{
		Name:     nameFromTitle(hit.Title),
		Email:    snippetEmail.FindString(hit.Snippet),
		Country:  pq.query.Market,
		Category: pq.category,
		Notes:    strings.TrimSpace(hit.Snippet),
		Source:   a.name,
	}
	if m := snippetFollowers.FindStringSubmatch(hit.Snippet); len(m) > 1 {
		raw.FollowersRaw = strings.ReplaceAll(m[1], " ", "")
	}

	u, err := url.Parse(strings.TrimSpace(hit.URL))
	if err != nil || u.Host == "" {
		return entity.RawContact{}, false
	}
	if platform, ok := dedupe.PlatformForHost(u.Hostname()); ok {
		raw.Socials = entity.Socials{platform: hit.URL}
	} else {
		if raw.Email == "" {
			return entity.RawContact{}, false
		}
		raw.Socials = entity.Socials{entity.PlatformWebsite: hit.URL}
	}
	return raw, true
}

func nameFromTitle(title string) string {
	title = strings.TrimSpace(title)
	cut := len(title)
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(title[:cut])
}
