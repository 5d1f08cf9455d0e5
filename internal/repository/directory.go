package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/source"
)

const maxDirectoryPerPage = 200

// PGXDirectoryRepository reads the directory_contacts table.
type PGXDirectoryRepository struct {
	pool pgxPool
}

// NewPGXDirectoryRepository wires a pgx backed directory reader.
func NewPGXDirectoryRepository(pool pgxPool) *PGXDirectoryRepository {
	return &PGXDirectoryRepository{pool: pool}
}

var _ source.DirectoryReader = (*PGXDirectoryRepository)(nil)

// SearchDirectory implements source.DirectoryReader.
func (r *PGXDirectoryRepository) SearchDirectory(ctx context.Context, filter source.DirectoryFilter) ([]source.DirectoryEntry, error) {
	baseQuery := strings.Builder{}
	baseQuery.WriteString(`
        SELECT
            name,
            COALESCE(title, ''),
            COALESCE(company, ''),
            COALESCE(email, ''),
            COALESCE(phone, ''),
            COALESCE(country, ''),
            COALESCE(category, ''),
            COALESCE(notes, ''),
            COALESCE(instagram, ''),
            COALESCE(tiktok, ''),
            COALESCE(twitter, ''),
            COALESCE(linkedin, ''),
            COALESCE(website, ''),
            COALESCE(followers, ''),
            followers_normalized
        FROM directory_contacts
    `)

	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if categories := foldAll(filter.Categories, strings.ToLower); len(categories) > 0 {
		clauses = append(clauses, fmt.Sprintf("LOWER(category) = ANY($%d)", idx))
		args = append(args, categories)
		idx++
	}
	if countries := foldAll(filter.Countries, strings.ToUpper); len(countries) > 0 {
		clauses = append(clauses, fmt.Sprintf("UPPER(country) = ANY($%d)", idx))
		args = append(args, countries)
		idx++
	}
	if filter.MinFollowers > 0 {
		clauses = append(clauses, fmt.Sprintf("followers_normalized >= $%d", idx))
		args = append(args, filter.MinFollowers)
		idx++
	}
	if term := strings.TrimSpace(filter.Term); term != "" {
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%[1]d OR title ILIKE $%[1]d OR company ILIKE $%[1]d OR notes ILIKE $%[1]d)", idx))
		args = append(args, "%"+term+"%")
		idx++
	}

	if len(clauses) > 0 {
		baseQuery.WriteString(" WHERE ")
		baseQuery.WriteString(strings.Join(clauses, " AND "))
	}
	baseQuery.WriteString(" ORDER BY followers_normalized DESC, id ASC")

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > maxDirectoryPerPage {
		perPage = maxDirectoryPerPage
	}
	baseQuery.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1))
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, baseQuery.String(), args...)
	if err != nil {
		return nil, eris.Wrap(err, "search directory")
	}
	defer rows.Close()

	return scanDirectoryEntries(rows)
}

func scanDirectoryEntries(rows pgx.Rows) ([]source.DirectoryEntry, error) {
	var out []source.DirectoryEntry
	for rows.Next() {
		var e source.DirectoryEntry
		if err := rows.Scan(
			&e.Name,
			&e.Title,
			&e.Company,
			&e.Email,
			&e.Phone,
			&e.Country,
			&e.Category,
			&e.Notes,
			&e.Instagram,
			&e.TikTok,
			&e.Twitter,
			&e.LinkedIn,
			&e.Website,
			&e.Followers,
			&e.FollowersNormalized,
		); err != nil {
			return nil, eris.Wrap(err, "scan directory entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate directory entries")
	}
	return out, nil
}

func foldAll(values []string, fold func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = fold(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
