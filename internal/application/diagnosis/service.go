// Package diagnosis orchestrates one analysis request through the engine:
// validation, feature building and text encoding in parallel, classification
// and retrieval, fusion, and advisor enrichment.
package diagnosis

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/healthsync/hybrid-engine/internal/engine/advisor"
	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/internal/engine/features"
	"github.com/healthsync/hybrid-engine/internal/engine/fusion"
	"github.com/healthsync/hybrid-engine/internal/engine/retriever"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	types "github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// Encoder is the slice of the model manager the orchestrator needs.
type Encoder interface {
	Encode(ctx context.Context, text string) (types.TextEmbedding, error)
	Snapshot() encoder.Snapshot
	FellBack() bool
}

// Classifier scores a feature vector against every known disease label.
type Classifier interface {
	Predict(features []float64) (map[string]float64, error)
	Labels() []string
	Version() string
}

// Config tunes the orchestrator.
type Config struct {
	// TopK is the number of corpus documents retrieved per request.
	TopK int

	// RetrieverBackend labels retrieval metrics ("memory" or "milvus").
	RetrieverBackend string
}

// Service runs the hybrid diagnosis pipeline.  All collaborators are
// read-only after construction, so one Service serves concurrent requests.
type Service struct {
	cfg        Config
	enc        Encoder
	classifier Classifier
	retriever  retriever.Retriever
	scorer     *fusion.Scorer
	advisor    *advisor.Advisor
	logger     logging.Logger
	metrics    *prometheus.AppMetrics
}

// NewService wires the pipeline.  metrics may be nil in tests.
func NewService(cfg Config, enc Encoder, cls Classifier, ret retriever.Retriever,
	scorer *fusion.Scorer, adv *advisor.Advisor, logger logging.Logger, metrics *prometheus.AppMetrics) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RetrieverBackend == "" {
		cfg.RetrieverBackend = "memory"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if adv == nil {
		adv = advisor.New()
	}
	return &Service{
		cfg:        cfg,
		enc:        enc,
		classifier: cls,
		retriever:  ret,
		scorer:     scorer,
		advisor:    adv,
		logger:     logger.Named("diagnosis"),
		metrics:    metrics,
	}
}

// Analyze validates the case, runs both evidence channels, and returns the
// fused, enriched result.  Degraded-but-successful paths surface as warnings
// on the result rather than errors.
func (s *Service) Analyze(ctx context.Context, pc *types.PatientCase) (*types.HybridDiagnosisResult, error) {
	start := time.Now()

	result, err := s.analyze(ctx, pc)

	snap := s.enc.Snapshot()
	if s.metrics != nil {
		prometheus.SetEncoderState(s.metrics, string(snap.State))
		prometheus.RecordAnalyze(s.metrics, err == nil, string(snap.Mode), time.Since(start), candidateCount(result))
		if err != nil {
			prometheus.RecordError(s.metrics, "diagnosis", string(errors.GetCode(err)))
		} else {
			prometheus.RecordWarnings(s.metrics, result.Warnings)
		}
	}
	if err != nil {
		s.logger.Error("analysis failed",
			logging.String("error_code", string(errors.GetCode(err))),
			logging.Duration("elapsed", time.Since(start)),
			logging.Err(err))
		return nil, err
	}

	s.logger.Info("analysis complete",
		logging.Int("candidates", len(result.Candidates)),
		logging.String("inference_mode", string(result.InferenceMode)),
		logging.Any("warnings", result.Warnings),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (s *Service) analyze(ctx context.Context, pc *types.PatientCase) (*types.HybridDiagnosisResult, error) {
	if err := features.Validate(pc); err != nil {
		return nil, err
	}
	notesEmpty := strings.TrimSpace(pc.ClinicalNotes) == ""

	var (
		featureVec []float64
		embedding  types.TextEmbedding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		featureVec, err = features.Build(pc)
		return err
	})
	g.Go(func() error {
		encodeStart := time.Now()
		var err error
		embedding, err = s.enc.Encode(gctx, pc.ClinicalNotes)
		s.recordEncode(time.Since(encodeStart), err)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	classifyStart := time.Now()
	probabilities, err := s.classifier.Predict(featureVec)
	if s.metrics != nil {
		s.metrics.ClassifyDuration.WithLabelValues().Observe(time.Since(classifyStart).Seconds())
	}
	if err != nil {
		return nil, err
	}

	retrievalStart := time.Now()
	retrieved, err := s.retriever.Retrieve(ctx, embedding, s.cfg.TopK)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "knowledge retrieval failed")
	}
	if s.metrics != nil {
		prometheus.RecordRetrieval(s.metrics, s.cfg.RetrieverBackend, time.Since(retrievalStart), len(retrieved))
	}

	candidates := s.scorer.Fuse(probabilities, retrieved)
	enrichment := s.advisor.Enrich(candidates, pc.ClinicalNotes)

	result := &types.HybridDiagnosisResult{
		Candidates:        candidates,
		Warnings:          []string{},
		FollowUpQuestions: enrichment.FollowUpQuestions,
		Differentials:     enrichment.Differentials,
	}

	snap := s.enc.Snapshot()
	result.InferenceMode = snap.Mode
	if notesEmpty {
		result.Warnings = append(result.Warnings, types.WarningEmptyClinicalNotes)
	}
	if s.enc.FellBack() {
		result.Warnings = append(result.Warnings, types.WarningRemoteFallback)
	}
	if len(retrieved) == 0 {
		result.Warnings = append(result.Warnings, types.WarningRetrievalEmpty)
	}
	return result, nil
}

// recordEncode observes the encode latency under the serving mode and, when
// the remote path served, counts the API call.
func (s *Service) recordEncode(d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	mode := s.enc.Snapshot().Mode
	s.metrics.EncodeDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	if mode == types.InferenceModeRemote {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.metrics.RemoteInferenceTotal.WithLabelValues(status).Inc()
	}
}

func candidateCount(r *types.HybridDiagnosisResult) int {
	if r == nil {
		return 0
	}
	return len(r.Candidates)
}
