package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docverify/internal/core/domain"
)

var submissionColumns = []string{
	"id", "subject_id", "declared_kind", "front_key", "front_name", "front_mime", "back_key", "back_name", "back_mime",
	"state", "error_message", "document_id", "status", "result", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*SubmissionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SubmissionRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateInsertsSubmission(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	sub := &domain.Submission{
		ID:           "sub-1",
		SubjectID:    "user-1",
		DeclaredKind: domain.KindPassport,
		FrontKey:     "sub-1_front_front.png",
		FrontName:    "front.png",
		FrontMIME:    domain.MIMEPNG,
		State:        domain.SubmissionQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO submissions").
		WithArgs("sub-1", "user-1", "PASSPORT", "sub-1_front_front.png", "front.png", domain.MIMEPNG,
			"", "", "", "queued", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, subject_id, declared_kind").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesResult(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(submissionColumns).AddRow(
		"sub-1", "user-1", "CNI", "fk", "front.png", domain.MIMEPNG, "", "", "",
		"completed", "", "doc-9", "confirmed",
		[]byte(`{"holderName":"Jane","confidenceScore":0.9,"isValid":true}`), now, now,
	)
	mock.ExpectQuery("SELECT id, subject_id, declared_kind").
		WithArgs("doc-9").
		WillReturnRows(rows)

	sub, err := repo.GetByID(context.Background(), "doc-9")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sub.State != domain.SubmissionCompleted || sub.Status != domain.StatusConfirmed || sub.DeclaredKind != domain.KindNationalID {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if sub.Result == nil || sub.Result.HolderName != "Jane" || sub.Result.ConfidenceScore != 0.9 {
		t.Fatalf("unexpected result: %+v", sub.Result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDWithoutResult(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(submissionColumns).AddRow(
		"sub-1", "user-1", "", "fk", "front.png", domain.MIMEPNG, "", "", "",
		"queued", "", "", "", nil, now, now,
	)
	mock.ExpectQuery("SELECT id, subject_id, declared_kind").WithArgs("sub-1").WillReturnRows(rows)

	sub, err := repo.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sub.Result != nil || sub.State != domain.SubmissionQueued {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

func TestListBySubject(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(submissionColumns).
		AddRow("sub-2", "user-1", "", "fk2", "a.png", domain.MIMEPNG, "", "", "", "queued", "", "", "", nil, now, now).
		AddRow("sub-1", "user-1", "", "fk1", "b.png", domain.MIMEPNG, "", "", "", "failed", "boom", "", "", nil, now, now)
	mock.ExpectQuery("SELECT id, subject_id").WithArgs("user-1", 20).WillReturnRows(rows)

	subs, err := repo.ListBySubject(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("ListBySubject() error = %v", err)
	}
	if len(subs) != 2 || subs[1].Error != "boom" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStateReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE submissions").
		WithArgs("missing", string(domain.SubmissionProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateState(context.Background(), "missing", domain.SubmissionProcessing, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultMarksCompleted(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE submissions").
		WithArgs("sub-1", "completed", "doc-1", "unclear", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveResult(context.Background(), "sub-1", domain.Verification{
		DocumentID: "doc-1",
		Status:     domain.StatusUnclear,
		Result:     domain.ExtractionResult{ConfidenceScore: 0.4},
	})
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
