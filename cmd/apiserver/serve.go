package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	appdiag "github.com/healthsync/hybrid-engine/internal/application/diagnosis"
	"github.com/healthsync/hybrid-engine/internal/config"
	"github.com/healthsync/hybrid-engine/internal/engine/advisor"
	"github.com/healthsync/hybrid-engine/internal/engine/classifier"
	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/internal/engine/fusion"
	"github.com/healthsync/hybrid-engine/internal/engine/retriever"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/database/postgres"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/database/postgres/repositories"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/storage/minio"
	httpiface "github.com/healthsync/hybrid-engine/internal/interfaces/http"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/handlers"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/middleware"
	types "github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

const serviceName = "hybrid-diagnosis-engine"

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: outputPaths(cfg.Log.Output),
	})
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger.Info("starting", logging.String("service", serviceName), logging.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	var (
		appMetrics     *prometheus.AppMetrics
		metricsHandler = prometheus.MetricsCollector(nil)
	)
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            "engine",
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return err
		}
		appMetrics = prometheus.NewAppMetrics(collector)
		metricsHandler = collector
	}

	// Model artifacts from object storage, when enabled.
	if cfg.MinIO.Enabled {
		store, err := minio.NewClient(ctx, cfg.MinIO, logger)
		if err != nil {
			return err
		}
		artifacts := []minio.Artifact{
			{ObjectName: filepath.Base(cfg.Classifier.ArtifactPath), LocalPath: cfg.Classifier.ArtifactPath},
			{ObjectName: filepath.Base(cfg.Inference.ModelPath), LocalPath: cfg.Inference.ModelPath},
			{ObjectName: filepath.Base(cfg.Inference.TokenizerPath), LocalPath: cfg.Inference.TokenizerPath},
		}
		if cfg.Retriever.CorpusSource == "file" {
			artifacts = append(artifacts, minio.Artifact{
				ObjectName: filepath.Base(cfg.Retriever.CorpusPath),
				LocalPath:  cfg.Retriever.CorpusPath,
			})
		}
		if err := store.EnsureLocal(ctx, artifacts); err != nil {
			return err
		}
	}

	// Structured classifier, startup-fatal when missing or invalid.
	cls, err := classifier.Load(cfg.Classifier.ArtifactPath)
	if err != nil {
		return err
	}
	logger.Info("classifier loaded",
		logging.String("version", cls.Version()),
		logging.Int("labels", len(cls.Labels())))

	// Knowledge retriever.
	ret, cleanup, err := buildRetriever(ctx, cfg, logger, appMetrics)
	if err != nil {
		return err
	}
	defer cleanup()

	// Encoder manager with lazy local load and optional remote fallback.
	manager := buildManager(cfg, logger, appMetrics)
	defer manager.Close()

	scorer, err := fusion.NewScorer(fusion.Config{
		TextWeight:         cfg.Fusion.TextWeight,
		StructuredWeight:   cfg.Fusion.StructuredWeight,
		EvidenceWeight:     cfg.Fusion.EvidenceWeight,
		ScoreFloor:         cfg.Fusion.ConfidenceFloor,
		EvidenceSaturation: cfg.Fusion.EvidenceSaturation,
		MaxCandidates:      cfg.Fusion.MaxCandidates,
	})
	if err != nil {
		return err
	}

	service := appdiag.NewService(appdiag.Config{
		TopK:             cfg.Retriever.TopK,
		RetrieverBackend: cfg.Retriever.Backend,
	}, manager, cls, ret, scorer, advisor.New(), logger, appMetrics)

	router := httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           cfg.Server.Mode,
		AnalyzeHandler: handlers.NewAnalyzeHandler(service),
		HealthHandler:  handlers.NewHealthHandler(serviceName, version, manager, cls, ret, appMetrics),
		CORS:           middleware.CORSConfig{},
		Logger:         logger,
		Metrics:        appMetrics,
		MetricsHandler: metricsHTTPHandler(metricsHandler),
	})

	srv := httpiface.NewServer(cfg.Server, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	return srv.Shutdown(cfg.Server.ShutdownTimeout)
}

// buildRetriever loads the corpus from the configured source and wraps it in
// the configured backend.  The returned cleanup releases any connections.
func buildRetriever(ctx context.Context, cfg *config.Config, logger logging.Logger, metrics *prometheus.AppMetrics) (retriever.Retriever, func(), error) {
	noop := func() {}

	if cfg.Retriever.Backend == "milvus" {
		mr, err := retriever.NewMilvusRetriever(ctx, retriever.MilvusConfig{
			Address:      cfg.Milvus.Addr,
			DBName:       cfg.Milvus.DBName,
			Collection:   cfg.Milvus.Collection,
			MetricType:   cfg.Milvus.MetricType,
			SearchEf:     cfg.Milvus.SearchParams,
			EmbeddingDim: cfg.Inference.EmbeddingDim,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		setCorpusGauge(metrics, "milvus", mr.Size())
		return mr, func() { _ = mr.Close() }, nil
	}

	var (
		docs    []types.KnowledgeDocument
		cleanup = noop
		err     error
	)
	switch cfg.Retriever.CorpusSource {
	case "postgres":
		conn, connErr := postgres.NewConnection(ctx, cfg.Database, logger)
		if connErr != nil {
			return nil, noop, connErr
		}
		if cfg.Database.MigrationPath != "" {
			if migErr := postgres.RunMigrations(cfg.Database, logger); migErr != nil {
				conn.Close()
				return nil, noop, migErr
			}
		}
		repo := repositories.NewCorpusRepository(conn.Pool(), logger, metrics)
		docs, err = repo.LoadAll(ctx)
		if err != nil {
			conn.Close()
			return nil, noop, err
		}
		cleanup = conn.Close
	default:
		docs, err = retriever.LoadCorpusFile(cfg.Retriever.CorpusPath)
		if err != nil {
			return nil, noop, err
		}
	}

	mem, err := retriever.NewMemoryRetriever(docs, cfg.Inference.EmbeddingDim)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	setCorpusGauge(metrics, cfg.Retriever.CorpusSource, mem.Size())
	logger.Info("knowledge corpus ready", logging.Int("documents", mem.Size()))
	return mem, cleanup, nil
}

// buildManager assembles the encoder manager.  An empty remote token
// disables the remote path entirely.
func buildManager(cfg *config.Config, logger logging.Logger, metrics *prometheus.AppMetrics) *encoder.Manager {
	instrument := func(mode string, factory encoder.ProviderFactory) encoder.ProviderFactory {
		return func(ctx context.Context) (encoder.Provider, error) {
			start := time.Now()
			p, err := factory(ctx)
			if metrics != nil {
				prometheus.RecordEncoderLoad(metrics, mode, time.Since(start), err)
			}
			return p, err
		}
	}

	localFactory := instrument("local", func(context.Context) (encoder.Provider, error) {
		return encoder.NewLocalProvider(encoder.LocalConfig{
			ModelID:           cfg.Inference.ModelName,
			ModelPath:         cfg.Inference.ModelPath,
			TokenizerPath:     cfg.Inference.TokenizerPath,
			OrtSharedLibrary:  cfg.Inference.OrtSharedLibrary,
			EmbeddingDim:      cfg.Inference.EmbeddingDim,
			MaxSequenceLength: cfg.Inference.MaxSequenceLength,
		}, logger)
	})

	var remoteFactory encoder.ProviderFactory
	if cfg.Inference.HFToken != "" {
		remoteFactory = instrument("api", func(context.Context) (encoder.Provider, error) {
			return encoder.NewRemoteProvider(encoder.RemoteConfig{
				ModelID:      cfg.Inference.ModelName,
				BaseURL:      cfg.Inference.HFAPIBaseURL,
				Token:        cfg.Inference.HFToken,
				Timeout:      cfg.Inference.RemoteTimeout,
				EmbeddingDim: cfg.Inference.EmbeddingDim,
			}, logger)
		})
	}

	return encoder.NewManager(encoder.ManagerConfig{
		ModelID:             cfg.Inference.ModelName,
		EmbeddingDim:        cfg.Inference.EmbeddingDim,
		AllowRemoteFallback: cfg.Inference.AllowRemoteFallback,
	}, localFactory, remoteFactory, logger)
}

func setCorpusGauge(metrics *prometheus.AppMetrics, source string, size int) {
	if metrics != nil {
		metrics.CorpusDocumentsTotal.WithLabelValues(source).Set(float64(size))
	}
}

func metricsHTTPHandler(collector prometheus.MetricsCollector) http.Handler {
	if collector == nil {
		return nil
	}
	return collector.Handler()
}

func outputPaths(output string) []string {
	if output == "" {
		return nil
	}
	return []string{output}
}
