package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/service/dedupe"
)

// CSVValidationError indicates that a directory CSV payload is invalid.
type CSVValidationError struct {
	Message string
}

// Error implements the error interface.
func (e CSVValidationError) Error() string {
	return e.Message
}

var requiredDirectoryHeaders = []string{"name", "category", "country"}

// MemoryDirectory is an in-process DirectoryReader over a fixed set of entries.
type MemoryDirectory struct {
	entries []DirectoryEntry
}

// NewMemoryDirectory indexes the entries, computing normalized follower
// counts and sorting them largest first.
func NewMemoryDirectory(entries []DirectoryEntry) *MemoryDirectory {
	sorted := make([]DirectoryEntry, len(entries))
	copy(sorted, entries)
	for i := range sorted {
		sorted[i].FollowersNormalized = dedupe.NormalizeFollowers(sorted[i].Followers)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FollowersNormalized > sorted[j].FollowersNormalized
	})
	return &MemoryDirectory{entries: sorted}
}

// LoadDirectoryFile reads a directory CSV from disk.
func LoadDirectoryFile(path string) (*MemoryDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open directory file %s", path)
	}
	defer f.Close()
	return LoadDirectoryCSV(f)
}

// LoadDirectoryCSV parses directory rows. The header must contain name,
// category and country; title, company, email, phone, notes, instagram,
// tiktok, twitter, linkedin, website and followers are optional.
func LoadDirectoryCSV(r io.Reader) (*MemoryDirectory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, CSVValidationError{Message: "csv file is empty"}
		}
		return nil, eris.Wrap(err, "read csv header")
	}

	index, valErr := buildHeaderIndex(header)
	if valErr != nil {
		return nil, valErr
	}

	var entries []DirectoryEntry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv row")
		}

		col := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		name := col("name")
		if name == "" {
			continue
		}
		entries = append(entries, DirectoryEntry{
			Name:      name,
			Title:     col("title"),
			Company:   col("company"),
			Email:     col("email"),
			Phone:     col("phone"),
			Country:   col("country"),
			Category:  col("category"),
			Notes:     col("notes"),
			Instagram: col("instagram"),
			TikTok:    col("tiktok"),
			Twitter:   col("twitter"),
			LinkedIn:  col("linkedin"),
			Website:   col("website"),
			Followers: col("followers"),
		})
	}

	return NewMemoryDirectory(entries), nil
}

// Len returns the number of loaded entries.
func (d *MemoryDirectory) Len() int {
	return len(d.entries)
}

// SearchDirectory implements DirectoryReader.
func (d *MemoryDirectory) SearchDirectory(ctx context.Context, filter DirectoryFilter) ([]DirectoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultDirectoryPerPage
	}

	categories := foldSet(filter.Categories, strings.ToLower)
	countries := foldSet(filter.Countries, strings.ToUpper)
	term := strings.ToLower(strings.TrimSpace(filter.Term))

	skip := (page - 1) * perPage
	out := make([]DirectoryEntry, 0, perPage)
	for _, e := range d.entries {
		if len(categories) > 0 && !hasKey(categories, strings.ToLower(strings.TrimSpace(e.Category))) {
			continue
		}
		if len(countries) > 0 && !hasKey(countries, strings.ToUpper(strings.TrimSpace(e.Country))) {
			continue
		}
		if e.FollowersNormalized < filter.MinFollowers {
			continue
		}
		if term != "" && !matchesTerm(e, term) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, e)
		if len(out) == perPage {
			break
		}
	}
	return out, nil
}

func matchesTerm(e DirectoryEntry, term string) bool {
	haystack := strings.ToLower(strings.Join([]string{e.Name, e.Title, e.Company, e.Notes}, " "))
	return strings.Contains(haystack, term)
}

func buildHeaderIndex(header []string) (map[string]int, error) {
	index := make(map[string]int)
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	missing := make([]string, 0)
	for _, required := range requiredDirectoryHeaders {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, CSVValidationError{Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	return index, nil
}

func foldSet(values []string, fold func(string) string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = fold(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
