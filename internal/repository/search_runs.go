package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
)

var searchRunContactColumns = []string{"run_id", "position", "identity_key", "match_score", "source", "payload"}

// PGXSearchRunsRepository archives completed runs keyed by correlation id.
type PGXSearchRunsRepository struct {
	pool pgxPool
}

// NewPGXSearchRunsRepository wires a pgx backed run archive.
func NewPGXSearchRunsRepository(pool pgxPool) *PGXSearchRunsRepository {
	return &PGXSearchRunsRepository{pool: pool}
}

// SaveRun upserts the run header and replaces its contact rows. It returns
// the id of the stored run, which is the existing one when the correlation
// id was already archived.
func (r *PGXSearchRunsRepository) SaveRun(ctx context.Context, run entity.SearchRun) (uuid.UUID, error) {
	if strings.TrimSpace(run.CorrelationID) == "" {
		return uuid.Nil, eris.New("search run correlation id must not be empty")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now().UTC()
	}

	briefJSON, err := json.Marshal(run.Brief)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "marshal search brief")
	}
	logsJSON, err := json.Marshal(run.Logs)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "marshal search logs")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "start save run tx")
	}
	defer tx.Rollback(ctx)

	var runID uuid.UUID
	err = tx.QueryRow(ctx, `
        INSERT INTO search_runs (id, correlation_id, principal_id, brief, total, logs, completed_at)
        VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7)
        ON CONFLICT (correlation_id) DO UPDATE SET
            principal_id = EXCLUDED.principal_id,
            brief = EXCLUDED.brief,
            total = EXCLUDED.total,
            logs = EXCLUDED.logs,
            completed_at = EXCLUDED.completed_at
        RETURNING id
    `, run.ID, run.CorrelationID, run.PrincipalID, string(briefJSON), len(run.Contacts), string(logsJSON), run.CompletedAt).Scan(&runID)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "upsert search run")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM search_run_contacts WHERE run_id = $1`, runID); err != nil {
		return uuid.Nil, eris.Wrap(err, "clear search run contacts")
	}

	if len(run.Contacts) > 0 {
		rows := make([][]any, 0, len(run.Contacts))
		for i, c := range run.Contacts {
			payload, err := json.Marshal(c)
			if err != nil {
				return uuid.Nil, eris.Wrapf(err, "marshal contact %s", c.IdentityKey)
			}
			rows = append(rows, []any{runID, i, c.IdentityKey, c.MatchScore, c.Source, payload})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"search_run_contacts"}, searchRunContactColumns, pgx.CopyFromRows(rows)); err != nil {
			return uuid.Nil, eris.Wrap(err, "copy search run contacts")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, eris.Wrap(err, "commit save run tx")
	}
	return runID, nil
}
