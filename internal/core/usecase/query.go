package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
)

// QueryVerificationUseCase reads a verification back. Local submissions are
// served from the repository; unknown ids are looked up on the backend as
// document ids.
type QueryVerificationUseCase struct {
	repo   ports.SubmissionRepository
	remote ports.RemoteDocumentReader
	now    func() time.Time
}

func NewQueryVerificationUseCase(repo ports.SubmissionRepository, remote ports.RemoteDocumentReader) *QueryVerificationUseCase {
	return &QueryVerificationUseCase{
		repo:   repo,
		remote: remote,
		now:    time.Now,
	}
}

func (uc *QueryVerificationUseCase) GetVerification(ctx context.Context, id string, session domain.SessionContext) (*domain.Submission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get verification", errors.New("id is required"))
	}
	subject := strings.TrimSpace(session.SubjectID)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrMissingIdentity, "get verification", errors.New("subject id is required"))
	}

	if uc.repo != nil {
		sub, err := uc.repo.GetByID(ctx, id)
		switch {
		case err == nil:
			if subject != sub.SubjectID {
				return nil, domain.WrapError(domain.ErrNotFound, "get verification", fmt.Errorf("submission %s", id))
			}
			return sub, nil
		case !domain.IsKind(err, domain.ErrNotFound):
			return nil, fmt.Errorf("fetch submission by id: %w", err)
		}
	}

	if uc.remote == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get verification", fmt.Errorf("submission %s", id))
	}
	normalized, err := uc.remote.FetchDocument(ctx, id, session)
	if err != nil {
		return nil, fmt.Errorf("fetch backend document: %w", err)
	}

	now := uc.now().UTC()
	result := normalized.Result
	return &domain.Submission{
		ID:         id,
		SubjectID:  subject,
		State:      domain.SubmissionCompleted,
		DocumentID: normalized.DocumentID,
		Status:     domain.ClassifyStatus(result, now),
		Result:     &result,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (uc *QueryVerificationUseCase) ListVerifications(ctx context.Context, session domain.SessionContext, limit int) ([]domain.Submission, error) {
	subject := strings.TrimSpace(session.SubjectID)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrMissingIdentity, "list verifications", errors.New("subject id is required"))
	}
	if uc.repo == nil {
		return []domain.Submission{}, nil
	}
	subs, err := uc.repo.ListBySubject(ctx, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}
