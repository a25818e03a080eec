package callog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"leadcall-platform/pkg/utils"
)

// Repository persists the dial attempt journal.
//
// Implementations must treat entries as append-only; corrections arrive
// as new rows, never as updates to old ones.
type Repository interface {
	RecordAttempt(ctx context.Context, e Entry) (Entry, error)
	ListByCall(ctx context.Context, callID string) ([]Entry, error)
	ListByLead(ctx context.Context, leadID string) ([]Entry, error)
	Summarize(ctx context.Context, from, to time.Time) (Summary, error)
}

// PostgresRepo stores the journal in Postgres plus a per-call current
// state row, kept in step inside one transaction.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the journal tables if they do not exist.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS call_attempts (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL,
	lead_id          TEXT NOT NULL,
	phone            TEXT NOT NULL,
	attempt          INT NOT NULL,
	status           TEXT NOT NULL,
	provider_call_id TEXT NOT NULL DEFAULT '',
	duration         INT NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_attempts_call ON call_attempts (call_id);
CREATE INDEX IF NOT EXISTS idx_call_attempts_lead ON call_attempts (lead_id);
CREATE INDEX IF NOT EXISTS idx_call_attempts_created ON call_attempts (created_at);

CREATE TABLE IF NOT EXISTS call_state (
	call_id    TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempts   INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *PostgresRepo) RecordAttempt(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO call_attempts (id, call_id, lead_id, phone, attempt, status, provider_call_id, duration, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.CallID, e.LeadID, e.Phone, e.Attempt, string(e.Status), e.ProviderCallID, e.DurationSeconds, e.Error, e.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO call_state (call_id, lead_id, status, attempts, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (call_id) DO UPDATE SET status = $3, attempts = $4, updated_at = $5`,
			e.CallID, e.LeadID, string(e.Status), e.Attempt, e.CreatedAt)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Entry, error) {
	return r.list(ctx, `SELECT id, call_id, lead_id, phone, attempt, status, provider_call_id, duration, error, created_at
FROM call_attempts WHERE call_id = $1 ORDER BY attempt`, callID)
}

func (r *PostgresRepo) ListByLead(ctx context.Context, leadID string) ([]Entry, error) {
	return r.list(ctx, `SELECT id, call_id, lead_id, phone, attempt, status, provider_call_id, duration, error, created_at
FROM call_attempts WHERE lead_id = $1 ORDER BY created_at`, leadID)
}

func (r *PostgresRepo) list(ctx context.Context, query string, arg any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.CallID, &e.LeadID, &e.Phone, &e.Attempt, &status,
			&e.ProviderCallID, &e.DurationSeconds, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	var s Summary
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE status = 'success'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'skipped'),
	COUNT(*) FILTER (WHERE status = 'cancelled'),
	COALESCE(SUM(duration), 0)
FROM call_attempts WHERE created_at >= $1 AND created_at < $2`, from, to).
		Scan(&s.TotalAttempts, &s.Successful, &s.Failed, &s.Skipped, &s.Cancelled, &s.TotalDurationSeconds)
	if err != nil {
		return Summary{}, err
	}
	s.finish()
	return s, nil
}

func (s *Summary) finish() {
	if s.TotalAttempts > 0 {
		s.AverageDurationSeconds = s.TotalDurationSeconds / s.TotalAttempts
		s.ConnectRate = float64(s.Successful) / float64(s.TotalAttempts)
	}
}
