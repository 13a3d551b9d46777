package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
)

// Multipart field names expected by the verification backend.
const (
	FieldFrontFile = "frontFile"
	FieldBackFile  = "backFile"
	FieldPieceType = "pieceType"
	FieldUserID    = "userId"
)

const (
	SideFront = "front"
	SideBack  = "back"
)

type SubmitConfig struct {
	UploadPath       string
	TargetBytes      int64
	MaxCombinedBytes int64
	// RequireNetwork turns a negative gate answer into a hard failure.
	RequireNetwork bool
	Policy         domain.RetryPolicy
}

func (c SubmitConfig) normalize() SubmitConfig {
	out := c
	if strings.TrimSpace(out.UploadPath) == "" {
		out.UploadPath = "/api/documents/upload"
	}
	if out.TargetBytes <= 0 {
		out.TargetBytes = domain.DefaultTargetBytes
	}
	if out.MaxCombinedBytes <= 0 {
		out.MaxCombinedBytes = domain.MaxCombinedBytes
	}
	if out.Policy == (domain.RetryPolicy{}) {
		out.Policy = domain.UploadRetryPolicy()
	}
	return out
}

// SubmitDocumentUseCase runs one verification end to end: compression, local
// preconditions, network advice, upload, normalization and status.
type SubmitDocumentUseCase struct {
	compressor ports.ImageCompressor
	gate       ports.NetworkGate
	transport  ports.Transport
	normalizer ports.ResponseNormalizer
	observer   ports.PipelineObserver
	cfg        SubmitConfig
	now        func() time.Time
}

func NewSubmitDocumentUseCase(
	compressor ports.ImageCompressor,
	gate ports.NetworkGate,
	transport ports.Transport,
	normalizer ports.ResponseNormalizer,
	observer ports.PipelineObserver,
	cfg SubmitConfig,
) *SubmitDocumentUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &SubmitDocumentUseCase{
		compressor: compressor,
		gate:       gate,
		transport:  transport,
		normalizer: normalizer,
		observer:   observer,
		cfg:        cfg.normalize(),
		now:        time.Now,
	}
}

func (uc *SubmitDocumentUseCase) Submit(ctx context.Context, in ports.SubmitInput) (verification *domain.Verification, err error) {
	started := time.Now()
	defer func() {
		status := domain.VerificationStatus("")
		if verification != nil {
			status = verification.Status
		}
		uc.observer.ObserveVerification(status, err, time.Since(started))
	}()

	session := in.Session
	session.SubjectID = strings.TrimSpace(session.SubjectID)
	if session.SubjectID == "" {
		return nil, domain.WrapError(domain.ErrMissingIdentity, "submit document", errors.New("subject id is required"))
	}
	if len(in.Front.Data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("front side is required"))
	}

	req := domain.SubmissionRequest{DeclaredKind: in.DeclaredKind, Session: session}
	if req.Front, err = uc.compress(ctx, SideFront, in.Front); err != nil {
		return nil, err
	}
	if in.Back != nil && len(in.Back.Data) > 0 {
		if req.Back, err = uc.compress(ctx, SideBack, *in.Back); err != nil {
			return nil, err
		}
	}

	if combined := req.CombinedSize(); combined > uc.cfg.MaxCombinedBytes {
		return nil, domain.WrapError(domain.ErrPayloadTooLarge, "submit document",
			fmt.Errorf("front %d + back %d = %d bytes exceeds %d", req.Front.Size(), req.Back.Size(), combined, uc.cfg.MaxCombinedBytes))
	}

	advice := uc.checkNetwork()
	if !advice.Advisable && uc.cfg.RequireNetwork {
		return nil, domain.WrapError(domain.ErrOffline, "submit document", errors.New(advice.Reason))
	}

	body, contentType, err := buildMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("build upload payload: %w", err)
	}

	resp, err := uc.transport.Send(ctx, domain.TransportRequest{
		Operation:   "upload",
		Method:      http.MethodPost,
		Path:        uc.cfg.UploadPath,
		ContentType: contentType,
		Body:        body,
		BearerToken: session.BearerToken,
	}, uc.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	normalized, err := uc.normalizer.Normalize(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("normalize upload response: %w", err)
	}

	documentID := normalized.DocumentID
	if documentID == "" {
		documentID = "doc_" + uuid.NewString()
	}
	now := uc.now().UTC()
	verification = &domain.Verification{
		DocumentID:  documentID,
		Status:      domain.ClassifyStatus(normalized.Result, now),
		Result:      normalized.Result,
		Network:     advice,
		Retries:     max(resp.Attempts-1, 0),
		SubmittedAt: now,
	}
	slog.Info("document_verified",
		"document_id", verification.DocumentID,
		"status", verification.Status,
		"kind", req.DeclaredKind,
		"bytes", req.CombinedSize(),
		"retries", verification.Retries,
		"confidence_estimated", verification.Result.ConfidenceEstimated,
	)
	return verification, nil
}

func (uc *SubmitDocumentUseCase) compress(ctx context.Context, side string, src domain.SourceImage) (*domain.CompressionResult, error) {
	started := time.Now()
	result, err := uc.compressor.Compress(ctx, src, uc.cfg.TargetBytes)
	if err != nil {
		return nil, fmt.Errorf("compress %s side: %w", side, err)
	}
	uc.observer.ObserveCompression(side, result, time.Since(started))
	return &result, nil
}

func (uc *SubmitDocumentUseCase) checkNetwork() domain.NetworkAdvice {
	if uc.gate == nil {
		return domain.NetworkAdvice{Advisable: true, Online: true}
	}
	advice := uc.gate.Check()
	uc.observer.ObserveNetworkAdvice(advice)
	if !advice.Advisable {
		slog.Warn("network_not_advisable", "reason", advice.Reason, "enforced", uc.cfg.RequireNetwork)
	}
	return advice
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildMultipart writes the parts in a fixed order: frontFile, backFile,
// pieceType, userId.
func buildMultipart(req domain.SubmissionRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFilePart(writer, FieldFrontFile, req.Front); err != nil {
		return nil, "", err
	}
	if req.Back != nil {
		if err := writeFilePart(writer, FieldBackFile, req.Back); err != nil {
			return nil, "", err
		}
	}
	if err := writer.WriteField(FieldPieceType, string(req.DeclaredKind)); err != nil {
		return nil, "", fmt.Errorf("write %s: %w", FieldPieceType, err)
	}
	if err := writer.WriteField(FieldUserID, req.Session.SubjectID); err != nil {
		return nil, "", fmt.Errorf("write %s: %w", FieldUserID, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, field string, file *domain.CompressionResult) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, quoteEscaper.Replace(file.Filename)))
	contentType := file.Format
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

type noopObserver struct{}

func (noopObserver) ObserveCompression(string, domain.CompressionResult, time.Duration) {}
func (noopObserver) ObserveVerification(domain.VerificationStatus, error, time.Duration) {}
func (noopObserver) ObserveConfidenceDefaulted() {}
func (noopObserver) ObserveNetworkAdvice(domain.NetworkAdvice) {}
