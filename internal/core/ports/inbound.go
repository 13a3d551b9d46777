package ports

import (
	"context"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// SubmitInput is one user submission as received from an inbound adapter.
type SubmitInput struct {
	Front        domain.SourceImage
	Back         *domain.SourceImage
	DeclaredKind domain.DocumentKind
	Session      domain.SessionContext
}

// DocumentSubmitter is the inbound contract for a synchronous verification.
type DocumentSubmitter interface {
	Submit(ctx context.Context, in SubmitInput) (*domain.Verification, error)
}

// SubmissionIngestor stores a submission and queues it for the worker.
type SubmissionIngestor interface {
	Enqueue(ctx context.Context, in SubmitInput) (*domain.Submission, error)
}

// SubmissionProcessor is the inbound contract for asynchronous processing.
type SubmissionProcessor interface {
	ProcessByID(ctx context.Context, submissionID string) error
}

// VerificationReader reads back a verification by submission or backend document id.
type VerificationReader interface {
	GetVerification(ctx context.Context, id string, session domain.SessionContext) (*domain.Submission, error)
	ListVerifications(ctx context.Context, session domain.SessionContext, limit int) ([]domain.Submission, error)
}

// NetworkAdvisor exposes the connectivity advice to callers before they submit.
type NetworkAdvisor interface {
	Check() domain.NetworkAdvice
}
