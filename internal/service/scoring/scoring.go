package scoring

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/octobees/leads-discovery/internal/entity"
)

const (
	categoryContactType  = "contact_type"
	categoryMarket       = "market"
	categoryGenre        = "genre"
	categoryCompleteness = "completeness"
)

const (
	weightContactType = 0.35
	weightMarket      = 0.25
	weightGenre       = 0.15
	weightEmail       = 0.15
	weightSocial      = 0.10
)

// ScoreResult reports the aggregate match score and the per-category breakdown.
type ScoreResult struct {
	Total     float64
	Breakdown map[string]float64
}

// ComputeMatch evaluates how well a contact fits the brief. The total is in
// [0,1]. Without a genre in the brief the genre weight is left out and the
// remaining weights are scaled back up to 1.
func ComputeMatch(c entity.Contact, brief entity.SearchBrief) ScoreResult {
	breakdown := map[string]float64{
		categoryContactType:  scoreContactType(c, brief.ContactTypes),
		categoryMarket:       scoreMarket(c, brief.Markets),
		categoryCompleteness: scoreCompleteness(c),
	}

	available := weightContactType + weightMarket + weightEmail + weightSocial
	if genre := strings.TrimSpace(brief.Genre); genre != "" {
		breakdown[categoryGenre] = scoreGenre(c, genre)
		available += weightGenre
	}

	total := 0.0
	for _, value := range breakdown {
		total += value
	}
	total = math.Min(1, math.Max(0, total/available))

	return ScoreResult{Total: total, Breakdown: breakdown}
}

// Score sets MatchScore on every contact. Re-scoring is idempotent.
func Score(contacts []*entity.Contact, brief entity.SearchBrief) {
	for _, c := range contacts {
		c.MatchScore = ComputeMatch(*c, brief).Total
	}
}

func scoreContactType(c entity.Contact, types []string) float64 {
	if len(types) == 0 {
		return 0
	}
	category := phrase(c.Category)
	text := fold(c.Title + " " + c.Notes)
	for _, t := range types {
		want := phrase(t)
		if want == "" {
			continue
		}
		if category == want {
			return weightContactType
		}
		if containsPhrase(text, want) {
			return weightContactType
		}
	}
	return 0
}

func scoreMarket(c entity.Contact, markets []string) float64 {
	country := strings.ToUpper(strings.TrimSpace(c.Country))
	if country == "" {
		return 0
	}
	for _, m := range markets {
		if strings.ToUpper(strings.TrimSpace(m)) == country {
			return weightMarket
		}
	}
	return 0
}

func scoreGenre(c entity.Contact, genre string) float64 {
	keywords := tokens(fold(genre))
	if len(keywords) == 0 {
		return 0
	}
	haystack := make(map[string]struct{})
	for _, tok := range tokens(fold(strings.Join([]string{c.Name, c.Title, c.Company, c.Notes}, " "))) {
		haystack[tok] = struct{}{}
	}
	matched := 0
	for _, kw := range keywords {
		if _, ok := haystack[kw]; ok {
			matched++
		}
	}
	return weightGenre * float64(matched) / float64(len(keywords))
}

func scoreCompleteness(c entity.Contact) float64 {
	score := 0.0
	if strings.TrimSpace(c.Email) != "" {
		score += weightEmail
	}
	if c.HasSocial() {
		score += weightSocial
	}
	return score
}

// phrase turns "playlist_curator" and "Playlist-Curator" into "playlist curator".
func phrase(value string) string {
	return strings.Join(tokens(fold(value)), " ")
}

func containsPhrase(text, want string) bool {
	return strings.Contains(" "+strings.Join(tokens(text), " ")+" ", " "+want+" ")
}

func tokens(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// fold lower-cases and strips diacritics so "Música" matches "musica".
func fold(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		out = value
	}
	return strings.ToLower(out)
}
