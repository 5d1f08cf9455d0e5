package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/credits"
	"github.com/octobees/leads-discovery/internal/source"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

var directoryColumns = []string{
	"name", "title", "company", "email", "phone", "country", "category", "notes",
	"instagram", "tiktok", "twitter", "linkedin", "website", "followers", "followers_normalized",
}

func TestPGXDirectoryRepository_SearchDirectory(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXDirectoryRepository(mock)

	rows := pgxmock.NewRows(directoryColumns).
		AddRow("DJ Alpha", "", "", "alpha@example.com", "", "US", "dj", "house", "djalpha", "", "", "", "", "12k", int64(12000)).
		AddRow("DJ Beta", "", "", "", "", "US", "dj", "", "", "djbeta", "", "", "", "900", int64(900))

	mock.ExpectQuery(`FROM directory_contacts WHERE LOWER\(category\) = ANY\(\$1\) AND UPPER\(country\) = ANY\(\$2\) AND followers_normalized >= \$3 AND \(name ILIKE \$4 OR title ILIKE \$4 OR company ILIKE \$4 OR notes ILIKE \$4\) ORDER BY followers_normalized DESC, id ASC LIMIT \$5 OFFSET \$6`).
		WithArgs([]string{"dj"}, []string{"US"}, int64(500), "%house%", 10, 10).
		WillReturnRows(rows)

	got, err := repo.SearchDirectory(context.Background(), source.DirectoryFilter{
		Categories:   []string{" DJ "},
		Countries:    []string{"us"},
		MinFollowers: 500,
		Term:         "house",
		Page:         2,
		PerPage:      10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "DJ Alpha", got[0].Name)
	assert.Equal(t, "djalpha", got[0].Instagram)
	assert.Equal(t, int64(12000), got[0].FollowersNormalized)
	assert.Equal(t, "djbeta", got[1].TikTok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXDirectoryRepository_DefaultsAndErrors(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXDirectoryRepository(mock)

	mock.ExpectQuery(`FROM directory_contacts ORDER BY followers_normalized DESC, id ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(maxDirectoryPerPage, 0).
		WillReturnError(errors.New("relation does not exist"))

	_, err := repo.SearchDirectory(context.Background(), source.DirectoryFilter{PerPage: 1000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search directory")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXCreditsRepository_Balance(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXCreditsRepository(mock, 25)

	mock.ExpectQuery(`SELECT balance FROM credit_accounts WHERE principal_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(7))
	mock.ExpectQuery(`SELECT balance FROM credit_accounts WHERE principal_id = \$1`).
		WithArgs("new-user").
		WillReturnError(pgx.ErrNoRows)

	balance, err := repo.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	balance, err = repo.Balance(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXCreditsRepository_Debit(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXCreditsRepository(mock, 10)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_accounts`).WithArgs("user-1", 10).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT balance FROM credit_accounts WHERE principal_id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(5))
	mock.ExpectExec(`UPDATE credit_accounts`).WithArgs("user-1", 3).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), "user-1", -3, "tier:enrichment").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Debit(context.Background(), "user-1", 3, "tier:enrichment"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXCreditsRepository_DebitInsufficient(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXCreditsRepository(mock, 0)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_accounts`).WithArgs("user-2", 0).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("user-2").WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(0))
	mock.ExpectRollback()

	err := repo.Debit(context.Background(), "user-2", 1, "tier:web_search")
	require.Error(t, err)
	assert.True(t, eris.Is(err, credits.ErrInsufficientCredits))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXSearchRunsRepository_SaveRun(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPGXSearchRunsRepository(mock)
	runID := uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")

	run := entity.SearchRun{
		CorrelationID: "corr-1",
		PrincipalID:   "user-1",
		Brief:         entity.SearchBrief{ContactTypes: []string{"dj"}, Markets: []string{"US"}, Depth: entity.DepthQuick, TargetCount: 5},
		Contacts: []entity.Contact{
			{IdentityKey: "email:a@example.com", MatchScore: 0.9, Source: "directory"},
			{IdentityKey: "instagram:b", MatchScore: 0.4, Source: "web_search"},
		},
		Logs: []string{"tier directory started"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO search_runs`).
		WithArgs(pgxmock.AnyArg(), "corr-1", "user-1", pgxmock.AnyArg(), 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(runID))
	mock.ExpectExec(`DELETE FROM search_run_contacts WHERE run_id = \$1`).WithArgs(runID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"search_run_contacts"}, searchRunContactColumns).WillReturnResult(2)
	mock.ExpectCommit()

	id, err := repo.SaveRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, runID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGXSearchRunsRepository_SaveRunValidation(t *testing.T) {
	mock := newMockPool(t)
	_, err := NewPGXSearchRunsRepository(mock).SaveRun(context.Background(), entity.SearchRun{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "correlation id")

	mock.ExpectBegin().WillReturnError(errors.New("db error"))
	_, err = NewPGXSearchRunsRepository(mock).SaveRun(context.Background(), entity.SearchRun{CorrelationID: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start save run tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}
