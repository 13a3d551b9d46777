package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
)

// ProcessSubmissionUseCase runs a queued submission through the synchronous
// pipeline and stores the outcome.
type ProcessSubmissionUseCase struct {
	repo      ports.SubmissionRepository
	storage   ports.ObjectStorage
	submitter ports.DocumentSubmitter
}

func NewProcessSubmissionUseCase(
	repo ports.SubmissionRepository,
	storage ports.ObjectStorage,
	submitter ports.DocumentSubmitter,
) *ProcessSubmissionUseCase {
	return &ProcessSubmissionUseCase{
		repo:      repo,
		storage:   storage,
		submitter: submitter,
	}
}

func (uc *ProcessSubmissionUseCase) ProcessByID(ctx context.Context, submissionID string) error {
	sub, err := uc.repo.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("fetch submission by id: %w", err)
	}
	if sub.State == domain.SubmissionCompleted {
		return nil
	}

	if err := uc.markState(ctx, submissionID, domain.SubmissionProcessing, ""); err != nil {
		return fmt.Errorf("set state=processing: %w", err)
	}

	verification, err := uc.processPipeline(ctx, sub)
	if err != nil {
		if failErr := uc.markFailed(ctx, submissionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed state: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveResult(ctx, submissionID, *verification); err != nil {
		if failErr := uc.markFailed(ctx, submissionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed state: %v", err, failErr)
		}
		return fmt.Errorf("save verification result: %w", err)
	}
	return nil
}

func (uc *ProcessSubmissionUseCase) processPipeline(ctx context.Context, sub *domain.Submission) (*domain.Verification, error) {
	front, err := uc.loadSide(ctx, sub.FrontKey, sub.FrontName, sub.FrontMIME)
	if err != nil {
		return nil, err
	}
	in := ports.SubmitInput{
		Front:        front,
		DeclaredKind: sub.DeclaredKind,
		Session:      domain.SessionContext{SubjectID: sub.SubjectID},
	}
	if sub.BackKey != "" {
		back, err := uc.loadSide(ctx, sub.BackKey, sub.BackName, sub.BackMIME)
		if err != nil {
			return nil, err
		}
		in.Back = &back
	}

	verification, err := uc.submitter.Submit(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("submit document: %w", err)
	}
	return verification, nil
}

func (uc *ProcessSubmissionUseCase) loadSide(ctx context.Context, key, filename, mimeType string) (domain.SourceImage, error) {
	reader, err := uc.storage.Open(ctx, key)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("open stored file %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("read stored file %s: %w", key, err)
	}
	return domain.SourceImage{Filename: filename, MIMEType: mimeType, Data: data}, nil
}

func (uc *ProcessSubmissionUseCase) markState(ctx context.Context, submissionID string, state domain.SubmissionState, errMessage string) error {
	return uc.repo.UpdateState(ctx, submissionID, state, errMessage)
}

func (uc *ProcessSubmissionUseCase) markFailed(ctx context.Context, submissionID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markState(ctx, submissionID, domain.SubmissionFailed, processErr.Error())
}
