package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docverify/internal/config"
	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
	"github.com/kirillkom/docverify/internal/core/usecase"
	"github.com/kirillkom/docverify/internal/infrastructure/imaging"
	"github.com/kirillkom/docverify/internal/infrastructure/network"
	"github.com/kirillkom/docverify/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docverify/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docverify/internal/infrastructure/resilience"
	"github.com/kirillkom/docverify/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docverify/internal/infrastructure/verifier"
	"github.com/kirillkom/docverify/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.SubmissionRepository
	Gate      *network.Gate
	Monitor   *network.Monitor
	Submitter ports.DocumentSubmitter
	IngestUC  ports.SubmissionIngestor
	ProcessUC ports.SubmissionProcessor
	QueryUC   ports.VerificationReader

	closeFn func()
}

// New wires the verification pipeline. Pipeline metrics are registered on
// registerer under the given service label.
func New(ctx context.Context, cfg config.Config, service string, registerer prometheus.Registerer) (*App, error) {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	pipelineMetrics := metrics.NewPipelineMetrics(service, registerer)

	executor := resilience.NewExecutor(resilience.Config{
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}).WithObserver(pipelineMetrics)

	transport := verifier.NewHTTPTransport(verifier.Config{
		BaseURL:          cfg.BackendBaseURL,
		ServiceToken:     cfg.BackendServiceToken,
		MaxResponseBytes: cfg.BackendMaxResponseBytes,
	}, executor)
	normalizer := verifier.NewNormalizer(cfg.ConfidencePlaceholder, pipelineMetrics)
	documents := verifier.NewDocumentReader(transport, normalizer, cfg.BackendDetailPath, retryPolicy(cfg, cfg.DetailAttemptTimeout))

	gate := network.NewGate()
	monitor := network.NewMonitor(gate, network.MonitorConfig{
		ProbeURL:     strings.TrimRight(cfg.BackendBaseURL, "/") + cfg.BackendWakePath,
		Interval:     cfg.NetworkProbeInterval,
		ProbeTimeout: cfg.NetworkProbeTimeout,
	}).WithSignalHook(func(sig network.Signal) {
		pipelineMetrics.ObserveProbe(sig.Online, sig.EffectiveType, sig.Latency)
	})

	submitUC := usecase.NewSubmitDocumentUseCase(
		imaging.NewDefaultPlanner(),
		gate,
		transport,
		normalizer,
		pipelineMetrics,
		usecase.SubmitConfig{
			UploadPath:       cfg.BackendUploadPath,
			TargetBytes:      cfg.CompressionTargetBytes,
			MaxCombinedBytes: cfg.MaxCombinedBytes,
			RequireNetwork:   cfg.RequireNetwork,
			Policy:           retryPolicy(cfg, cfg.UploadAttemptTimeout),
		},
	)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSubmissionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config:  cfg,
		Queue:   queue,
		Repo:    repo,
		Gate:    gate,
		Monitor: monitor,

		Submitter: submitUC,
		IngestUC:  usecase.NewIngestSubmissionUseCase(repo, storage, queue),
		ProcessUC: usecase.NewProcessSubmissionUseCase(repo, storage, submitUC),
		QueryUC:   usecase.NewQueryVerificationUseCase(repo, documents),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func retryPolicy(cfg config.Config, attemptTimeout time.Duration) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:     cfg.RetryMaxRetries,
		BaseBackoff:    cfg.RetryBaseBackoff,
		Multiplier:     cfg.RetryMultiplier,
		MaxBackoff:     cfg.RetryMaxBackoff,
		AttemptTimeout: attemptTimeout,
	}.Normalize()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
