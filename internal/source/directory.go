package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
)

const (
	defaultDirectoryPerPage  = 50
	defaultDirectoryMaxPages = 10
)

// DirectoryEntry is one row of the pre-loaded contact directory.
type DirectoryEntry struct {
	Name                string
	Title               string
	Company             string
	Email               string
	Phone               string
	Country             string
	Category            string
	Notes               string
	Instagram           string
	TikTok              string
	Twitter             string
	LinkedIn            string
	Website             string
	Followers           string
	FollowersNormalized int64
}

// DirectoryFilter selects directory entries. Empty slices match everything.
type DirectoryFilter struct {
	Categories   []string
	Countries    []string
	MinFollowers int64
	Term         string
	Page         int
	PerPage      int
}

// DirectoryReader returns one page of matching entries ordered by
// normalized follower count, largest first.
type DirectoryReader interface {
	SearchDirectory(ctx context.Context, filter DirectoryFilter) ([]DirectoryEntry, error)
}

// DirectoryAdapter serves contacts from a static dataset.
type DirectoryAdapter struct {
	reader       DirectoryReader
	name         string
	perPage      int
	maxPages     int
	minFollowers int64
}

// DirectoryOption configures a DirectoryAdapter.
type DirectoryOption func(*DirectoryAdapter)

// WithDirectoryName overrides the source name reported in provenance.
func WithDirectoryName(name string) DirectoryOption {
	return func(a *DirectoryAdapter) {
		if name = strings.TrimSpace(name); name != "" {
			a.name = name
		}
	}
}

// WithDirectoryPaging sets the page size and the maximum pages read per run.
func WithDirectoryPaging(perPage, maxPages int) DirectoryOption {
	return func(a *DirectoryAdapter) {
		if perPage > 0 {
			a.perPage = perPage
		}
		if maxPages > 0 {
			a.maxPages = maxPages
		}
	}
}

// WithMinFollowers drops entries below the given normalized follower count.
func WithMinFollowers(n int64) DirectoryOption {
	return func(a *DirectoryAdapter) {
		if n > 0 {
			a.minFollowers = n
		}
	}
}

// NewDirectoryAdapter builds an adapter over the given reader.
func NewDirectoryAdapter(reader DirectoryReader, opts ...DirectoryOption) *DirectoryAdapter {
	a := &DirectoryAdapter{
		reader:   reader,
		name:     "directory",
		perPage:  defaultDirectoryPerPage,
		maxPages: defaultDirectoryMaxPages,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *DirectoryAdapter) Name() string { return a.name }

// Discover pages through the directory until the brief's target is covered.
func (a *DirectoryAdapter) Discover(ctx context.Context, req Request) ([]entity.RawContact, error) {
	if a.reader == nil {
		return nil, eris.New("directory reader is not configured")
	}

	term := req.Brief.Query
	if term == "" {
		term = req.Brief.Genre
	}
	filter := DirectoryFilter{
		Categories:   req.Brief.ContactTypes,
		Countries:    req.Brief.Markets,
		MinFollowers: a.minFollowers,
		Term:         term,
		PerPage:      a.perPage,
	}

	var out []entity.RawContact
	for page := 1; page <= a.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filter.Page = page
		entries, err := a.reader.SearchDirectory(ctx, filter)
		if err != nil {
			return nil, eris.Wrapf(err, "search directory page %d", page)
		}
		for _, e := range entries {
			out = append(out, e.toRaw(a.name))
		}
		if len(entries) < a.perPage || len(out) >= req.Brief.TargetCount {
			break
		}
	}
	return out, nil
}

func (e DirectoryEntry) toRaw(source string) entity.RawContact {
	socials := entity.Socials{}
	set := func(p entity.Platform, v string) {
		if v = strings.TrimSpace(v); v != "" {
			socials[p] = v
		}
	}
	set(entity.PlatformInstagram, e.Instagram)
	set(entity.PlatformTikTok, e.TikTok)
	set(entity.PlatformTwitter, e.Twitter)
	set(entity.PlatformLinkedIn, e.LinkedIn)
	set(entity.PlatformWebsite, e.Website)
	if len(socials) == 0 {
		socials = nil
	}

	return entity.RawContact{
		Name:         e.Name,
		Title:        e.Title,
		Company:      e.Company,
		Email:        e.Email,
		Phone:        e.Phone,
		Country:      e.Country,
		Category:     e.Category,
		Notes:        e.Notes,
		Socials:      socials,
		FollowersRaw: e.Followers,
		Source:       source,
	}
}
