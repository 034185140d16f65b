package encoder_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/pkg/errors"
)

func remoteConfig(baseURL string) encoder.RemoteConfig {
	return encoder.RemoteConfig{
		ModelID:      "clinical-bert-hosted",
		BaseURL:      baseURL,
		Token:        "hf_test_token",
		Timeout:      2 * time.Second,
		EmbeddingDim: 4,
	}
}

func TestNewRemoteProvider_ConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*encoder.RemoteConfig)
	}{
		{"missing token", func(c *encoder.RemoteConfig) { c.Token = "" }},
		{"missing base url", func(c *encoder.RemoteConfig) { c.BaseURL = "" }},
		{"zero dimension", func(c *encoder.RemoteConfig) { c.EmbeddingDim = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := remoteConfig("https://api.example.test/models")
			tt.mutate(&cfg)
			_, err := encoder.NewRemoteProvider(cfg, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeEncoderLoadFailed))
		})
	}
}

func TestRemoteProvider_Encode_PooledVector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/clinical-bert-hosted/pipeline/feature-extraction", r.URL.Path)
		assert.Equal(t, "Bearer hf_test_token", r.Header.Get("Authorization"))

		var req struct {
			Inputs string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "shortness of breath", req.Inputs)

		_ = json.NewEncoder(w).Encode([]float32{3, 0, 4, 0})
	}))
	defer srv.Close()

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	vec, err := p.Encode(context.Background(), "shortness of breath")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	// The provider L2-normalizes: (3,0,4,0) has norm 5.
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[2], 1e-6)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestRemoteProvider_Encode_TokenMatrixIsMeanPooled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{
			{2, 0, 0, 0},
			{4, 0, 0, 0},
		})
	}))
	defer srv.Close()

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	vec, err := p.Encode(context.Background(), "abdominal pain")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	// Mean of (2,4) along the first axis normalizes to a unit vector on axis 0.
	assert.InDelta(t, 1.0, vec[0], 1e-6)
	assert.InDelta(t, 0.0, vec[1], 1e-6)
}

func TestRemoteProvider_Encode_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model is loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), "dizziness")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRemoteInferenceFailed))
	assert.Contains(t, err.Error(), "status=503")
}

func TestRemoteProvider_Encode_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode([]float32{1, 0, 0, 0})
	}))
	defer srv.Close()
	defer close(release)

	cfg := remoteConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	p, err := encoder.NewRemoteProvider(cfg, nil)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), "palpitations")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRemoteInferenceTimeout))
	assert.True(t, errors.IsRetryable(err))
}

func TestRemoteProvider_Encode_ContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode([]float32{1, 0, 0, 0})
	}))
	defer srv.Close()
	defer close(release)

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Encode(ctx, "palpitations")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRemoteInferenceTimeout))
}

func TestRemoteProvider_Encode_DimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]float32{1, 0, 0, 0, 0, 0})
	}))
	defer srv.Close()

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), "rash")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRemoteInferenceFailed))
	assert.Contains(t, err.Error(), "want=4 got=6")
}

func TestRemoteProvider_Encode_MalformedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a vector"}`))
	}))
	defer srv.Close()

	p, err := encoder.NewRemoteProvider(remoteConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = p.Encode(context.Background(), "fever")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRemoteInferenceFailed))
}
