package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the diagnosis engine exposes, grouped by
// pipeline stage.  All handles are safe for concurrent use.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Diagnosis pipeline
	AnalyzeRequestsTotal CounterVec
	AnalyzeDuration      HistogramVec
	AnalyzeWarningsTotal CounterVec
	CandidatesReturned   HistogramVec

	// Encoder
	EncoderLoadAttemptsTotal CounterVec
	EncoderLoadDuration      HistogramVec
	EncoderState             GaugeVec
	EncodeDuration           HistogramVec
	RemoteInferenceTotal     CounterVec

	// Classifier
	ClassifyDuration HistogramVec

	// Retriever
	RetrievalDuration    HistogramVec
	RetrievalHits        HistogramVec
	RetrievalEmptyTotal  CounterVec
	CorpusDocumentsTotal GaugeVec

	// Infrastructure
	DBQueryDuration HistogramVec

	// System health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Bucket presets tuned for the engine's latency profile: local ONNX encode
// runs in tens of milliseconds, remote inference in seconds, model loads in
// tens of seconds.
var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultEncodeDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultLoadDurationBuckets   = []float64{1, 2, 5, 10, 20, 30, 60, 120}
	DefaultSizeBuckets           = []float64{100, 1000, 10000, 100000, 1000000}
	DefaultHitCountBuckets       = []float64{0, 1, 2, 3, 5, 10, 20}
	DefaultDBDurationBuckets     = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all engine metrics against the collector and
// returns the populated AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests")

	// Pipeline
	m.AnalyzeRequestsTotal = collector.RegisterCounter("analyze_requests_total", "Diagnosis requests processed", "status", "inference_mode")
	m.AnalyzeDuration = collector.RegisterHistogram("analyze_duration_seconds", "End-to-end diagnosis duration", DefaultEncodeDurationBuckets, "inference_mode")
	m.AnalyzeWarningsTotal = collector.RegisterCounter("analyze_warnings_total", "Warnings attached to diagnosis results", "warning")
	m.CandidatesReturned = collector.RegisterHistogram("analyze_candidates_returned", "Candidates per diagnosis result", DefaultHitCountBuckets)

	// Encoder
	m.EncoderLoadAttemptsTotal = collector.RegisterCounter("encoder_load_attempts_total", "Encoder load attempts", "outcome")
	m.EncoderLoadDuration = collector.RegisterHistogram("encoder_load_duration_seconds", "Encoder load duration", DefaultLoadDurationBuckets, "mode")
	m.EncoderState = collector.RegisterGauge("encoder_state", "Encoder manager state (1 for the active state)", "state")
	m.EncodeDuration = collector.RegisterHistogram("encode_duration_seconds", "Text encoding duration", DefaultEncodeDurationBuckets, "mode")
	m.RemoteInferenceTotal = collector.RegisterCounter("remote_inference_total", "Remote inference API calls", "status")

	// Classifier
	m.ClassifyDuration = collector.RegisterHistogram("classify_duration_seconds", "Structured classification duration", DefaultDBDurationBuckets)

	// Retriever
	m.RetrievalDuration = collector.RegisterHistogram("retrieval_duration_seconds", "Knowledge retrieval duration", DefaultHTTPDurationBuckets, "backend")
	m.RetrievalHits = collector.RegisterHistogram("retrieval_hits", "Documents returned per retrieval", DefaultHitCountBuckets, "backend")
	m.RetrievalEmptyTotal = collector.RegisterCounter("retrieval_empty_total", "Retrievals that returned no documents", "backend")
	m.CorpusDocumentsTotal = collector.RegisterGauge("corpus_documents_total", "Documents loaded into the knowledge corpus", "source")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")

	// System health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_code")

	return m
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, respSize int64) {
	status := strconv.Itoa(statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

func RecordAnalyze(metrics *AppMetrics, success bool, inferenceMode string, duration time.Duration, candidateCount int) {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.AnalyzeRequestsTotal.WithLabelValues(status, inferenceMode).Inc()
	metrics.AnalyzeDuration.WithLabelValues(inferenceMode).Observe(duration.Seconds())
	if success {
		metrics.CandidatesReturned.WithLabelValues().Observe(float64(candidateCount))
	}
}

func RecordWarnings(metrics *AppMetrics, warnings []string) {
	for _, w := range warnings {
		metrics.AnalyzeWarningsTotal.WithLabelValues(w).Inc()
	}
}

func RecordEncoderLoad(metrics *AppMetrics, mode string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.EncoderLoadAttemptsTotal.WithLabelValues(outcome).Inc()
	metrics.EncoderLoadDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetEncoderState flips the state gauge so exactly one state reads 1.
func SetEncoderState(metrics *AppMetrics, state string) {
	for _, s := range []string{"uninitialized", "loading", "ready", "failed"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		metrics.EncoderState.WithLabelValues(s).Set(v)
	}
}

func RecordRetrieval(metrics *AppMetrics, backend string, duration time.Duration, hits int) {
	metrics.RetrievalDuration.WithLabelValues(backend).Observe(duration.Seconds())
	metrics.RetrievalHits.WithLabelValues(backend).Observe(float64(hits))
	if hits == 0 {
		metrics.RetrievalEmptyTotal.WithLabelValues(backend).Inc()
	}
}

func RecordDBQuery(metrics *AppMetrics, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("postgres", "query_error").Inc()
	}
}

func RecordError(metrics *AppMetrics, component, errorCode string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorCode).Inc()
}
