package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
	httpiface "github.com/healthsync/hybrid-engine/internal/interfaces/http"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/handlers"
	"github.com/healthsync/hybrid-engine/internal/interfaces/http/middleware"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	types "github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

type fakeAnalyzer struct {
	result *types.HybridDiagnosisResult
	err    error
	calls  int
	got    *types.PatientCase
}

func (f *fakeAnalyzer) Analyze(_ context.Context, pc *types.PatientCase) (*types.HybridDiagnosisResult, error) {
	f.calls++
	f.got = pc
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEncoderStatus struct {
	snap  encoder.Snapshot
	calls int
}

func (f *fakeEncoderStatus) Snapshot() encoder.Snapshot {
	f.calls++
	return f.snap
}

type fakeClassifierStatus struct{}

func (fakeClassifierStatus) Version() string   { return "2024.08-structured-v3" }
func (fakeClassifierStatus) Labels() []string  { return []string{"cardiac_ischemia", "hypertension"} }
func (fakeClassifierStatus) FeatureCount() int { return 12 }

type fakeRetrieverStatus struct{ size int }

func (f fakeRetrieverStatus) Size() int { return f.size }

func readySnapshot() encoder.Snapshot {
	return encoder.Snapshot{
		State:        encoder.StateReady,
		Mode:         types.InferenceModeLocal,
		ModelID:      "clinical-bert-onnx",
		LoadAttempts: 1,
	}
}

func newTestRouter(analyzer *fakeAnalyzer, encStatus *fakeEncoderStatus) http.Handler {
	return httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           "test",
		AnalyzeHandler: handlers.NewAnalyzeHandler(analyzer),
		HealthHandler: handlers.NewHealthHandler("hybrid-diagnosis-engine", "1.0.0",
			encStatus, fakeClassifierStatus{}, fakeRetrieverStatus{size: 42}, nil),
	})
}

func analyzeRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const validCaseJSON = `{"age":45,"gender":"male","clinical_notes":"exertional chest pain"}`

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: &types.HybridDiagnosisResult{
		Candidates: []types.DiagnosisCandidate{{
			DiseaseLabel:  "cardiac_ischemia",
			CombinedScore: 0.61,
		}},
		InferenceMode: types.InferenceModeLocal,
		Warnings:      []string{},
	}}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(validCaseJSON))

	require.Equal(t, http.StatusOK, rec.Code)
	var result types.HybridDiagnosisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "cardiac_ischemia", result.Candidates[0].DiseaseLabel)
	assert.Equal(t, types.InferenceModeLocal, result.InferenceMode)
	assert.Equal(t, 1, analyzer.calls)
}

// The reference request uses title-case gender; binding must normalise it
// rather than reject the payload.
func TestAnalyze_MixedCaseGenderAccepted(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: &types.HybridDiagnosisResult{
		Candidates: []types.DiagnosisCandidate{{DiseaseLabel: "cardiac_ischemia", CombinedScore: 0.61}},
		Warnings:   []string{},
	}}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(`{"age":45,"gender":"Male","clinical_notes":"Patient presents with chest pain"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, analyzer.calls)
	require.NotNil(t, analyzer.got)
	assert.Equal(t, types.GenderMale, analyzer.got.Gender)
}

func TestAnalyze_MalformedBody(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(`{"age": "not a number"`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.ErrCodeValidation), resp.Code)
	assert.Zero(t, analyzer.calls)
}

func TestAnalyze_ValidationErrorMapsTo422(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{err: errors.Validation("age must be between 0 and 150").WithDetail("got=-3")}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(validCaseJSON))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.ErrCodeValidation), resp.Code)
	assert.Equal(t, "age must be between 0 and 150", resp.Message)
	assert.Equal(t, "got=-3", resp.Detail)
}

func TestAnalyze_EncoderUnavailableMapsTo503(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{err: errors.New(errors.ErrCodeEncoderUnavailable, "no encoding path is available")}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: encoder.Snapshot{State: encoder.StateFailed}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(validCaseJSON))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.ErrCodeEncoderUnavailable), resp.Code)
}

func TestAnalyze_RemoteTimeoutMapsTo504(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{err: errors.New(errors.ErrCodeRemoteInferenceTimeout, "remote inference timed out")}
	router := newTestRouter(analyzer, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, analyzeRequest(validCaseJSON))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHealth_PayloadShape(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Status string `json:"status"`
		Models struct {
			ClinicalBERT struct {
				Status string `json:"status"`
				Mode   string `json:"mode"`
				Model  string `json:"model"`
			} `json:"clinical_bert"`
			StructuredClassifier struct {
				Status string `json:"status"`
				Model  string `json:"model"`
			} `json:"structured_classifier"`
			KnowledgeRetriever struct {
				Status    string `json:"status"`
				Documents int    `json:"documents"`
			} `json:"knowledge_retriever"`
		} `json:"models"`
		InferenceMode string `json:"inference_mode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "healthy", payload.Status)
	assert.Equal(t, "ready", payload.Models.ClinicalBERT.Status)
	assert.Equal(t, "local", payload.Models.ClinicalBERT.Mode)
	assert.Equal(t, "clinical-bert-onnx", payload.Models.ClinicalBERT.Model)
	assert.Equal(t, "2024.08-structured-v3", payload.Models.StructuredClassifier.Model)
	assert.Equal(t, 42, payload.Models.KnowledgeRetriever.Documents)
	assert.Equal(t, "local", payload.InferenceMode)
}

func TestHealth_DegradedWhenEncoderFailed(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: encoder.Snapshot{
		State:     encoder.StateFailed,
		LastError: "[ENC_003] both local and remote encoding paths failed",
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestHealth_NeverTriggersAnalysis(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	encStatus := &fakeEncoderStatus{snap: encoder.Snapshot{State: encoder.StateUninitialized}}
	router := newTestRouter(analyzer, encStatus)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Zero(t, analyzer.calls)
	assert.Equal(t, 5, encStatus.calls)
}

func TestHealth_UpdatesComponentGauges(t *testing.T) {
	t.Parallel()

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: "router_test",
		Subsystem: "engine",
	}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	router := httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           "test",
		AnalyzeHandler: handlers.NewAnalyzeHandler(&fakeAnalyzer{}),
		HealthHandler: handlers.NewHealthHandler("hybrid-diagnosis-engine", "1.0.0",
			&fakeEncoderStatus{snap: encoder.Snapshot{State: encoder.StateFailed}},
			fakeClassifierStatus{}, fakeRetrieverStatus{size: 42}, metrics),
		MetricsHandler: collector.Handler(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `router_test_engine_health_check_status{component="clinical_bert"} 0`)
	assert.Contains(t, body, `router_test_engine_health_check_status{component="structured_classifier"} 1`)
	assert.Contains(t, body, `router_test_engine_health_check_status{component="knowledge_retriever"} 1`)
}

func TestModelsStatus(t *testing.T) {
	t.Parallel()

	snap := readySnapshot()
	snap.FellBack = true
	snap.Mode = types.InferenceModeRemote
	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: snap})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"fell_back":true`)
	assert.Contains(t, body, `"mode":"api"`)
	assert.Contains(t, body, `"feature_count":12`)
}

func TestBanner(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hybrid-diagnosis-engine")
	assert.Contains(t, rec.Body.String(), "POST /analyze")
}

func TestRequestIDEchoedOnResponse(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: readySnapshot()})

	// Generated when absent.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	// Honoured when present.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-123")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeAnalyzer{}, &fakeEncoderStatus{snap: readySnapshot()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
