package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docverify/internal/core/domain"
)

type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	declared_kind TEXT NOT NULL DEFAULT '',
	front_key TEXT NOT NULL,
	front_name TEXT NOT NULL,
	front_mime TEXT NOT NULL,
	back_key TEXT NOT NULL DEFAULT '',
	back_name TEXT NOT NULL DEFAULT '',
	back_mime TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_subject ON submissions(subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_state ON submissions(state);
CREATE INDEX IF NOT EXISTS idx_submissions_document_id ON submissions(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO submissions (
	id, subject_id, declared_kind, front_key, front_name, front_mime, back_key, back_name, back_mime, state, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		sub.ID, sub.SubjectID, string(sub.DeclaredKind), sub.FrontKey, sub.FrontName, sub.FrontMIME,
		sub.BackKey, sub.BackName, sub.BackMIME, string(sub.State), sub.Error, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const selectSubmission = `
SELECT id, subject_id, declared_kind, front_key, front_name, front_mime, back_key, back_name, back_mime,
	state, error_message, document_id, status, result, created_at, updated_at
FROM submissions
`

// GetByID matches the submission id or, failing that, the backend document id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectSubmission+`WHERE id = $1 OR document_id = $1
ORDER BY (id = $1) DESC
LIMIT 1
`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get submission", fmt.Errorf("submission %s", id))
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectSubmission+`WHERE subject_id = $1
ORDER BY created_at DESC
LIMIT $2
`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) UpdateState(ctx context.Context, id string, state domain.SubmissionState, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET state = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(state), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update submission state: %w", err)
	}
	return ensureAffected(res, "update submission state", id)
}

func (r *SubmissionRepository) SaveResult(ctx context.Context, id string, verification domain.Verification) error {
	resultJSON, err := json.Marshal(verification.Result)
	if err != nil {
		return fmt.Errorf("marshal extraction result: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET state = $2, error_message = '', document_id = $3, status = $4, result = $5, updated_at = $6
WHERE id = $1
`, id, string(domain.SubmissionCompleted), verification.DocumentID, string(verification.Status), resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save verification result: %w", err)
	}
	return ensureAffected(res, "save verification result", id)
}

type submissionScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row submissionScanner) (domain.Submission, error) {
	var sub domain.Submission
	var kind, state, status string
	var resultRaw []byte

	err := row.Scan(
		&sub.ID, &sub.SubjectID, &kind, &sub.FrontKey, &sub.FrontName, &sub.FrontMIME,
		&sub.BackKey, &sub.BackName, &sub.BackMIME, &state, &sub.Error, &sub.DocumentID,
		&status, &resultRaw, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Submission{}, err
		}
		return domain.Submission{}, fmt.Errorf("scan submission: %w", err)
	}

	sub.DeclaredKind = domain.DocumentKind(kind)
	sub.State = domain.SubmissionState(state)
	sub.Status = domain.VerificationStatus(status)
	if len(resultRaw) > 0 {
		var result domain.ExtractionResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return domain.Submission{}, fmt.Errorf("unmarshal extraction result: %w", err)
		}
		sub.Result = &result
	}
	return sub, nil
}

func ensureAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("submission %s", id))
	}
	return nil
}
