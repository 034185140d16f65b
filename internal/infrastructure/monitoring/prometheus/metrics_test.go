package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)

	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.AnalyzeRequestsTotal)
	assert.NotNil(t, m.AnalyzeWarningsTotal)
	assert.NotNil(t, m.EncoderLoadAttemptsTotal)
	assert.NotNil(t, m.EncoderState)
	assert.NotNil(t, m.RemoteInferenceTotal)
	assert.NotNil(t, m.ClassifyDuration)
	assert.NotNil(t, m.RetrievalHits)
	assert.NotNil(t, m.CorpusDocumentsTotal)
	assert.NotNil(t, m.ErrorsTotal)
}

func TestRecordHTTPRequest_AllMetricsUpdated(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordHTTPRequest(m, "POST", "/api/v1/diagnosis/analyze", 200, 100*time.Millisecond, 2048)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_http_requests_total{method="POST",path="/api/v1/diagnosis/analyze",status_code="200"} 1`)
	assert.Contains(t, output, `test_unit_http_response_size_bytes_sum{method="POST",path="/api/v1/diagnosis/analyze"} 2048`)
	assert.Contains(t, output, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/diagnosis/analyze"} 1`)
}

func TestRecordAnalyze_Success(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordAnalyze(m, true, "local", 80*time.Millisecond, 3)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_analyze_requests_total{inference_mode="local",status="success"} 1`)
	assert.Contains(t, output, `test_unit_analyze_duration_seconds_count{inference_mode="local"} 1`)
	assert.Contains(t, output, `test_unit_analyze_candidates_returned_sum 3`)
}

func TestRecordAnalyze_FailureSkipsCandidateCount(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordAnalyze(m, false, "api", 5*time.Second, 0)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_analyze_requests_total{inference_mode="api",status="failure"} 1`)
	assert.NotContains(t, output, "test_unit_analyze_candidates_returned_count 1")
}

func TestRecordWarnings(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordWarnings(m, []string{"retrieval_empty", "remote_fallback"})
	RecordWarnings(m, []string{"retrieval_empty"})

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_analyze_warnings_total{warning="retrieval_empty"} 2`)
	assert.Contains(t, output, `test_unit_analyze_warnings_total{warning="remote_fallback"} 1`)
}

func TestRecordEncoderLoad(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordEncoderLoad(m, "local", 12*time.Second, nil)
	RecordEncoderLoad(m, "local", 3*time.Second, errors.New("load failed"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_encoder_load_attempts_total{outcome="success"} 1`)
	assert.Contains(t, output, `test_unit_encoder_load_attempts_total{outcome="failure"} 1`)
	assert.Contains(t, output, `test_unit_encoder_load_duration_seconds_count{mode="local"} 2`)
}

func TestSetEncoderState_ExactlyOneActive(t *testing.T) {
	m, c := newTestAppMetrics(t)

	SetEncoderState(m, "loading")
	SetEncoderState(m, "ready")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_encoder_state{state="ready"} 1`)
	assert.Contains(t, output, `test_unit_encoder_state{state="loading"} 0`)
	assert.Contains(t, output, `test_unit_encoder_state{state="failed"} 0`)
	assert.Contains(t, output, `test_unit_encoder_state{state="uninitialized"} 0`)
}

func TestRecordRetrieval_WithHits(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordRetrieval(m, "memory", 2*time.Millisecond, 5)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_retrieval_hits_sum{backend="memory"} 5`)
	assert.NotContains(t, output, "test_unit_retrieval_empty_total")
}

func TestRecordRetrieval_Empty(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordRetrieval(m, "milvus", 10*time.Millisecond, 0)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_retrieval_empty_total{backend="milvus"} 1`)
}

func TestRecordDBQuery_Error(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordDBQuery(m, "load_corpus", 5*time.Millisecond, errors.New("db error"))

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_db_query_duration_seconds_count{operation="load_corpus"} 1`)
	assert.Contains(t, output, `test_unit_errors_total{component="postgres",error_code="query_error"} 1`)
}

func TestRecordError(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordError(m, "encoder", "ENC_002")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_errors_total{component="encoder",error_code="ENC_002"} 1`)
}

func TestConcurrentMetricRecording(t *testing.T) {
	m, _ := newTestAppMetrics(t)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				RecordHTTPRequest(m, "GET", "/health", 200, time.Millisecond, 64)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
