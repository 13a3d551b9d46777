package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docverify/internal/core/domain"
)

type remoteReaderFake struct {
	ids []string
	out domain.NormalizedResponse
	err error
}

func (f *remoteReaderFake) FetchDocument(_ context.Context, documentID string, _ domain.SessionContext) (domain.NormalizedResponse, error) {
	f.ids = append(f.ids, documentID)
	return f.out, f.err
}

func TestGetVerificationServesLocalSubmission(t *testing.T) {
	repo := &submissionRepoFake{byID: map[string]*domain.Submission{"sub-1": queuedSubmission()}}
	remote := &remoteReaderFake{}
	uc := NewQueryVerificationUseCase(repo, remote)

	sub, err := uc.GetVerification(context.Background(), "sub-1", domain.SessionContext{SubjectID: "user-1"})
	if err != nil {
		t.Fatalf("GetVerification() error = %v", err)
	}
	if sub.ID != "sub-1" || len(remote.ids) != 0 {
		t.Fatalf("expected local submission without backend call")
	}
}

func TestGetVerificationHidesForeignSubmission(t *testing.T) {
	repo := &submissionRepoFake{byID: map[string]*domain.Submission{"sub-1": queuedSubmission()}}
	uc := NewQueryVerificationUseCase(repo, nil)

	_, err := uc.GetVerification(context.Background(), "sub-1", domain.SessionContext{SubjectID: "someone-else"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetVerificationRequiresIdentity(t *testing.T) {
	repo := &submissionRepoFake{byID: map[string]*domain.Submission{"sub-1": queuedSubmission()}}
	remote := &remoteReaderFake{}
	uc := NewQueryVerificationUseCase(repo, remote)

	for _, id := range []string{"sub-1", "doc-7"} {
		sub, err := uc.GetVerification(context.Background(), id, domain.SessionContext{SubjectID: "  "})
		if !errors.Is(err, domain.ErrMissingIdentity) {
			t.Fatalf("GetVerification(%s) error = %v, want missing identity", id, err)
		}
		if sub != nil {
			t.Fatalf("anonymous caller must not see submission %+v", sub)
		}
	}
	if len(remote.ids) != 0 {
		t.Fatalf("backend must not be queried without identity, got %v", remote.ids)
	}
}

func TestGetVerificationFallsBackToBackend(t *testing.T) {
	repo := &submissionRepoFake{byID: map[string]*domain.Submission{}}
	remote := &remoteReaderFake{out: domain.NormalizedResponse{
		DocumentID: "doc-7",
		Result:     domain.ExtractionResult{ConfidenceScore: 0.1},
	}}
	uc := NewQueryVerificationUseCase(repo, remote)

	sub, err := uc.GetVerification(context.Background(), "doc-7", domain.SessionContext{SubjectID: "user-1"})
	if err != nil {
		t.Fatalf("GetVerification() error = %v", err)
	}
	if len(remote.ids) != 1 || remote.ids[0] != "doc-7" {
		t.Fatalf("expected backend lookup, got %v", remote.ids)
	}
	if sub.State != domain.SubmissionCompleted || sub.Status != domain.StatusUnreadable || sub.DocumentID != "doc-7" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

func TestGetVerificationPropagatesRepositoryFailure(t *testing.T) {
	repo := &submissionRepoFake{getErr: errors.New("connection refused")}
	remote := &remoteReaderFake{}
	uc := NewQueryVerificationUseCase(repo, remote)

	if _, err := uc.GetVerification(context.Background(), "sub-1", domain.SessionContext{SubjectID: "user-1"}); err == nil {
		t.Fatalf("expected repository error")
	}
	if len(remote.ids) != 0 {
		t.Fatalf("backend must not be queried when the repository is down")
	}
}

func TestListVerificationsRequiresIdentity(t *testing.T) {
	uc := NewQueryVerificationUseCase(&submissionRepoFake{}, nil)
	if _, err := uc.ListVerifications(context.Background(), domain.SessionContext{}, 10); !errors.Is(err, domain.ErrMissingIdentity) {
		t.Fatalf("expected missing identity, got %v", err)
	}
}

func TestListVerificationsFiltersBySubject(t *testing.T) {
	other := queuedSubmission()
	other.ID = "sub-2"
	other.SubjectID = "user-2"
	repo := &submissionRepoFake{byID: map[string]*domain.Submission{"sub-1": queuedSubmission(), "sub-2": other}}
	uc := NewQueryVerificationUseCase(repo, nil)

	subs, err := uc.ListVerifications(context.Background(), domain.SessionContext{SubjectID: "user-1"}, 10)
	if err != nil {
		t.Fatalf("ListVerifications() error = %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-1" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
}
