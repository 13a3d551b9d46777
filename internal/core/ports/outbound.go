package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// ImageCompressor walks the compression ladder for one document side.
type ImageCompressor interface {
	Compress(ctx context.Context, src domain.SourceImage, targetBytes int64) (domain.CompressionResult, error)
}

// NetworkGate is a cheap synchronous connectivity check.
type NetworkGate interface {
	Check() domain.NetworkAdvice
}

// Transport issues one logical backend request under a retry policy.
type Transport interface {
	Send(ctx context.Context, req domain.TransportRequest, policy domain.RetryPolicy) (*domain.TransportResponse, error)
}

// ResponseNormalizer maps a raw backend payload onto the canonical result.
type ResponseNormalizer interface {
	Normalize(raw []byte) (domain.NormalizedResponse, error)
}

// RemoteDocumentReader fetches a stored extraction from the backend.
type RemoteDocumentReader interface {
	FetchDocument(ctx context.Context, documentID string, session domain.SessionContext) (domain.NormalizedResponse, error)
}

// SubmissionRepository persists asynchronous submissions and their results.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.Submission, error)
	UpdateState(ctx context.Context, id string, state domain.SubmissionState, errMessage string) error
	SaveResult(ctx context.Context, id string, verification domain.Verification) error
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes queued submissions.
type MessageQueue interface {
	PublishSubmissionQueued(ctx context.Context, submissionID string) error
	SubscribeSubmissionQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives pipeline events for metrics. Implementations must
// be safe for concurrent use.
type PipelineObserver interface {
	ObserveCompression(side string, result domain.CompressionResult, duration time.Duration)
	ObserveVerification(status domain.VerificationStatus, err error, duration time.Duration)
	ObserveConfidenceDefaulted()
	ObserveNetworkAdvice(advice domain.NetworkAdvice)
}
