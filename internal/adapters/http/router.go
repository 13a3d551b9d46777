package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/docverify/internal/config"
	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
	"github.com/kirillkom/docverify/internal/core/usecase"
	"github.com/kirillkom/docverify/internal/infrastructure/identity"
	"github.com/kirillkom/docverify/internal/infrastructure/intake"
	"github.com/kirillkom/docverify/internal/observability/metrics"
)

const (
	subjectHeader  = "X-Subject-Id"
	metricsService = "api"
	multipartSlack = 1 << 20
)

type Router struct {
	cfg       config.Config
	submitter ports.DocumentSubmitter
	ingestor  ports.SubmissionIngestor
	reader    ports.VerificationReader
	advisor   ports.NetworkAdvisor

	inspector *intake.Inspector
	resolver  *identity.Resolver
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	submitter ports.DocumentSubmitter,
	ingestor ports.SubmissionIngestor,
	reader ports.VerificationReader,
	advisor ports.NetworkAdvisor,
) *Router {
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		ingestor:  ingestor,
		reader:    reader,
		advisor:   advisor,
		inspector: intake.NewInspector(cfg.MaxFileBytes),
		resolver:  identity.NewResolver(),
	}
}

// WithMetrics enables /metrics and request instrumentation.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/network", rt.networkAdvice)
	mux.HandleFunc("/v1/verifications", rt.verifications)
	mux.HandleFunc("/v1/verifications/async", rt.submitAsync)
	mux.HandleFunc("/v1/verifications/", rt.getVerification)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWaitTimeout, rt.recordRejected)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) networkAdvice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if rt.advisor == nil {
		writeJSON(w, http.StatusOK, domain.NetworkAdvice{Advisable: true, Online: true})
		return
	}
	writeJSON(w, http.StatusOK, rt.advisor.Check())
}

func (rt *Router) verifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.submitSync(w, r)
	case http.MethodGet:
		rt.listVerifications(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (rt *Router) submitSync(w http.ResponseWriter, r *http.Request) {
	in, err := rt.parseSubmission(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if rt.cfg.APISyncSubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.APISyncSubmitTimeout)
		defer cancel()
	}

	verification, err := rt.submitter.Submit(ctx, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func (rt *Router) submitAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if rt.ingestor == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Code: "ASYNC_DISABLED", Message: "asynchronous submissions are not enabled"})
		return
	}

	in, err := rt.parseSubmission(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := rt.ingestor.Enqueue(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (rt *Router) getVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/verifications/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get verification", errors.New("verification id is required")))
		return
	}

	session := rt.resolver.Resolve(r.Header.Get(subjectHeader), r.Header.Get("Authorization"))
	sub, err := rt.reader.GetVerification(r.Context(), id, session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (rt *Router) listVerifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list verifications", fmt.Errorf("limit %q", raw)))
			return
		}
		limit = parsed
	}

	session := rt.resolver.Resolve(r.Header.Get(subjectHeader), r.Header.Get("Authorization"))
	subs, err := rt.reader.ListVerifications(r.Context(), session, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": subs})
}

// parseSubmission reads the multipart form the backend itself expects:
// frontFile, optional backFile, pieceType and userId.
func (rt *Router) parseSubmission(w http.ResponseWriter, r *http.Request) (ports.SubmitInput, error) {
	const op = "parse submission"

	maxFile := rt.cfg.MaxFileBytes
	if maxFile <= 0 {
		maxFile = intake.DefaultMaxFileBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxFile+multipartSlack)
	if err := r.ParseMultipartForm(multipartSlack); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ports.SubmitInput{}, domain.WrapError(domain.ErrPayloadTooLarge, op, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return ports.SubmitInput{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("multipart form: %w", err))
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	front, err := rt.readSide(r, usecase.FieldFrontFile, usecase.SideFront)
	if err != nil {
		return ports.SubmitInput{}, err
	}
	if front == nil {
		return ports.SubmitInput{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("multipart field '%s' is required", usecase.FieldFrontFile))
	}
	back, err := rt.readSide(r, usecase.FieldBackFile, usecase.SideBack)
	if err != nil {
		return ports.SubmitInput{}, err
	}

	explicit := r.FormValue(usecase.FieldUserID)
	if strings.TrimSpace(explicit) == "" {
		explicit = r.Header.Get(subjectHeader)
	}

	return ports.SubmitInput{
		Front:        *front,
		Back:         back,
		DeclaredKind: domain.ParseDocumentKind(r.FormValue(usecase.FieldPieceType)),
		Session:      rt.resolver.Resolve(explicit, r.Header.Get("Authorization")),
	}, nil
}

// readSide returns nil when the field is absent.
func (rt *Router) readSide(r *http.Request, field, side string) (*domain.SourceImage, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read "+side, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read "+side, err)
	}

	src, err := rt.inspector.Inspect(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(metricsService, side, src.Size())
	}
	return &src, nil
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(metricsService, reason)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, mapErrorToBody(err))
}
