package entity

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SearchDepth selects how many tiers a run may escalate through.
type SearchDepth string

// Supported depths.
const (
	DepthQuick SearchDepth = "quick"
	DepthDeep  SearchDepth = "deep"
	DepthFull  SearchDepth = "full"
)

// DefaultTargetCount is used when a brief does not ask for a specific count.
const DefaultTargetCount = 50

// ErrInvalidBrief is returned when a brief cannot be searched.
var ErrInvalidBrief = eris.New("invalid search brief")

// ParseSearchDepth maps user input to a depth; empty input yields the deep default.
func ParseSearchDepth(raw string) (SearchDepth, error) {
	switch SearchDepth(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DepthDeep, nil
	case DepthQuick:
		return DepthQuick, nil
	case DepthDeep:
		return DepthDeep, nil
	case DepthFull:
		return DepthFull, nil
	default:
		return "", eris.Wrapf(ErrInvalidBrief, "unsupported searchDepth %q", raw)
	}
}

// TierLimit returns how many tiers the depth allows.
func (d SearchDepth) TierLimit() int {
	switch d {
	case DepthQuick:
		return 1
	case DepthFull:
		return -1
	default:
		return 2
	}
}

// SearchBrief describes what a caller wants discovered.
type SearchBrief struct {
	ContactTypes []string    `json:"contactTypes"`
	Markets      []string    `json:"markets"`
	Genre        string      `json:"genre,omitempty"`
	Depth        SearchDepth `json:"searchDepth"`
	TargetCount  int         `json:"targetCount"`
	Query        string      `json:"query,omitempty"`
}

// Normalize returns a trimmed, de-duplicated copy with defaults applied.
func (b SearchBrief) Normalize() SearchBrief {
	out := SearchBrief{
		ContactTypes: uniqueValues(b.ContactTypes, strings.ToLower),
		Markets:      uniqueValues(b.Markets, strings.ToUpper),
		Genre:        strings.TrimSpace(b.Genre),
		Depth:        b.Depth,
		TargetCount:  b.TargetCount,
		Query:        strings.TrimSpace(b.Query),
	}
	if out.Depth == "" {
		out.Depth = DepthDeep
	}
	if out.TargetCount <= 0 {
		out.TargetCount = DefaultTargetCount
	}
	return out
}

// Validate rejects briefs that cannot produce a meaningful search.
func (b SearchBrief) Validate() error {
	if len(b.ContactTypes) == 0 {
		return eris.Wrap(ErrInvalidBrief, "contactTypes must not be empty")
	}
	if len(b.Markets) == 0 {
		return eris.Wrap(ErrInvalidBrief, "markets must not be empty")
	}
	if b.TargetCount <= 0 {
		return eris.Wrap(ErrInvalidBrief, "targetCount must be positive")
	}
	return nil
}

// SplitList parses a comma-separated parameter into its non-empty parts.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func uniqueValues(values []string, fold func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = fold(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Principal identifies who a run is billed to.
type Principal struct {
	ID     string `json:"id"`
	Exempt bool   `json:"exempt"`
}
