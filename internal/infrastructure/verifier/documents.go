package verifier

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
)

// DocumentReader reads a stored extraction back from the backend detail
// endpoint.
type DocumentReader struct {
	transport  ports.Transport
	normalizer ports.ResponseNormalizer
	detailPath string
	policy     domain.RetryPolicy
}

func NewDocumentReader(transport ports.Transport, normalizer ports.ResponseNormalizer, detailPath string, policy domain.RetryPolicy) *DocumentReader {
	return &DocumentReader{
		transport:  transport,
		normalizer: normalizer,
		detailPath: "/" + strings.Trim(detailPath, "/"),
		policy:     policy,
	}
}

func (r *DocumentReader) FetchDocument(ctx context.Context, documentID string, session domain.SessionContext) (domain.NormalizedResponse, error) {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return domain.NormalizedResponse{}, domain.WrapError(domain.ErrInvalidInput, "fetch document", errors.New("document id is required"))
	}

	resp, err := r.transport.Send(ctx, domain.TransportRequest{
		Operation:   "fetch_document",
		Method:      http.MethodGet,
		Path:        r.detailPath + "/" + url.PathEscape(id),
		BearerToken: session.BearerToken,
	}, r.policy)
	if err != nil {
		var backendErr *domain.BackendError
		if errors.As(err, &backendErr) && backendErr.StatusCode == http.StatusNotFound {
			return domain.NormalizedResponse{}, domain.WrapError(domain.ErrNotFound, "fetch document "+id, err)
		}
		return domain.NormalizedResponse{}, err
	}

	normalized, err := r.normalizer.Normalize(resp.Body)
	if err != nil {
		return domain.NormalizedResponse{}, err
	}
	if normalized.DocumentID == "" {
		normalized.DocumentID = id
	}
	return normalized, nil
}
