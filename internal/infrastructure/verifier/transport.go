package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/infrastructure/resilience"
)

const (
	defaultMaxResponseBytes int64 = 8 << 20
	defaultErrorCode              = "UPLOAD_FAILED"
)

type Config struct {
	BaseURL string
	// ServiceToken authenticates requests that carry no caller token.
	ServiceToken     string
	MaxResponseBytes int64
}

// HTTPTransport sends requests to the verification backend under a retry
// policy. The request body is replayed from memory on every attempt.
type HTTPTransport struct {
	baseURL          string
	serviceToken     string
	maxResponseBytes int64
	httpClient       *http.Client
	executor         *resilience.Executor
}

func NewHTTPTransport(cfg Config, executor *resilience.Executor) *HTTPTransport {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	return &HTTPTransport{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken:     strings.TrimSpace(cfg.ServiceToken),
		maxResponseBytes: maxBytes,
		httpClient: &http.Client{
			// Redirects are answered by the backend itself; they are not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		executor: executor,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req domain.TransportRequest, policy domain.RetryPolicy) (*domain.TransportResponse, error) {
	operation := "backend_" + strings.TrimSpace(req.Operation)
	if operation == "backend_" {
		operation = "backend_request"
	}

	var out *domain.TransportResponse
	exec, err := t.executor.Execute(ctx, operation, policy, func(attemptCtx context.Context) error {
		resp, err := t.do(attemptCtx, operation, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}, classifyBackendError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	out.Attempts = exec.Attempts
	out.Backoff = exec.Backoff
	return out, nil
}

func (t *HTTPTransport) do(ctx context.Context, operation string, req domain.TransportRequest) (*domain.TransportResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := t.bearerToken(req); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 300 && resp.StatusCode < 400 && isJSONBody(raw):
		// Some deployments answer 3xx with the final payload.
	case resp.StatusCode >= 500:
		return nil, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(raw), 2048),
		}
	default:
		return nil, parseBackendError(resp.StatusCode, raw)
	}

	slog.Debug("backend_response",
		"operation", operation,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)
	return &domain.TransportResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (t *HTTPTransport) bearerToken(req domain.TransportRequest) string {
	if token := strings.TrimSpace(req.BearerToken); token != "" {
		return token
	}
	return t.serviceToken
}

func parseBackendError(statusCode int, raw []byte) *domain.BackendError {
	out := &domain.BackendError{StatusCode: statusCode, Code: defaultErrorCode}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if code := strings.TrimSpace(payload.Code); code != "" {
			out.Code = code
		}
		out.Message = strings.TrimSpace(payload.Message)
		if out.Message == "" {
			out.Message = strings.TrimSpace(payload.Error)
		}
		return out
	}
	out.Message = truncate(strings.TrimSpace(string(raw)), 512)
	return out
}

func isJSONBody(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && json.Valid(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
