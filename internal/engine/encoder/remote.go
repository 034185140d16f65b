package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// RemoteConfig configures the hosted inference provider.
type RemoteConfig struct {
	ModelID      string
	BaseURL      string
	Token        string
	Timeout      time.Duration
	EmbeddingDim int
}

// remoteProvider calls the hosted feature-extraction endpoint.  The response
// is either one pooled vector or a per-token matrix; the matrix form is
// mean-pooled here so both paths produce the same embedding space as the
// local provider.
type remoteProvider struct {
	cfg    RemoteConfig
	client *http.Client
	logger logging.Logger
}

// NewRemoteProvider validates the config and probes nothing: the first
// Encode call reveals endpoint health, keeping construction cheap for the
// fallback path.
func NewRemoteProvider(cfg RemoteConfig, logger logging.Logger) (Provider, error) {
	if cfg.Token == "" {
		return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "remote inference token is not configured")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "remote inference base URL is not configured")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "embedding dimension must be positive")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &remoteProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (p *remoteProvider) Mode() diagnosis.InferenceMode { return diagnosis.InferenceModeRemote }
func (p *remoteProvider) ModelID() string               { return p.cfg.ModelID }
func (p *remoteProvider) Close() error                  { return nil }

type featureExtractionRequest struct {
	Inputs string `json:"inputs"`
}

func (p *remoteProvider) Encode(ctx context.Context, text string) (diagnosis.TextEmbedding, error) {
	body, err := json.Marshal(featureExtractionRequest{Inputs: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteInferenceFailed, "failed to encode request")
	}

	url := fmt.Sprintf("%s/%s/pipeline/feature-extraction", p.cfg.BaseURL, p.cfg.ModelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteInferenceFailed, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrap(err, errors.ErrCodeRemoteInferenceTimeout, "remote inference timed out").
				WithDetail("timeout=" + p.cfg.Timeout.String())
		}
		return nil, errors.Wrap(err, errors.ErrCodeRemoteInferenceFailed, "remote inference request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRemoteInferenceFailed, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeRemoteInferenceFailed, "remote inference returned an error").
			WithDetail(fmt.Sprintf("status=%d body=%s", resp.StatusCode, truncate(raw, 256)))
	}

	vec, err := parseFeatureExtraction(raw, p.cfg.EmbeddingDim)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// parseFeatureExtraction accepts both response shapes the endpoint emits:
// a single pooled vector or a token×dim matrix.
func parseFeatureExtraction(raw []byte, dim int) (diagnosis.TextEmbedding, error) {
	var matrix [][]float32
	if err := json.Unmarshal(raw, &matrix); err == nil && len(matrix) > 0 {
		pooled := make([]float32, dim)
		for _, row := range matrix {
			if len(row) != dim {
				return nil, errors.New(errors.ErrCodeRemoteInferenceFailed,
					"remote embedding dimension does not match the configured model").
					WithDetail(fmt.Sprintf("want=%d got=%d", dim, len(row)))
			}
			for d, v := range row {
				pooled[d] += v
			}
		}
		n := float64(len(matrix))
		for d := range pooled {
			pooled[d] = float32(float64(pooled[d]) / n)
		}
		return l2Normalize(pooled), nil
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err == nil && len(vec) > 0 {
		if len(vec) != dim {
			return nil, errors.New(errors.ErrCodeRemoteInferenceFailed,
				"remote embedding dimension does not match the configured model").
				WithDetail(fmt.Sprintf("want=%d got=%d", dim, len(vec)))
		}
		return l2Normalize(vec), nil
	}

	return nil, errors.New(errors.ErrCodeRemoteInferenceFailed, "unrecognized response payload").
		WithDetail("body=" + truncate(raw, 256))
}

func isTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
