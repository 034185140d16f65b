package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
)

// EncoderStatus exposes the encoder manager state without side effects.
type EncoderStatus interface {
	Snapshot() encoder.Snapshot
}

// ClassifierStatus exposes structured classifier metadata.
type ClassifierStatus interface {
	Version() string
	Labels() []string
	FeatureCount() int
}

// RetrieverStatus exposes corpus size.
type RetrieverStatus interface {
	Size() int
}

// HealthHandler serves the service banner, /health, and /models/status.
// All three read component snapshots only; none of them ever triggers a
// model load.
type HealthHandler struct {
	serviceName string
	version     string
	enc         EncoderStatus
	classifier  ClassifierStatus
	retriever   RetrieverStatus
	metrics     *prometheus.AppMetrics
}

// NewHealthHandler wires the status sources.  metrics may be nil.
func NewHealthHandler(serviceName, version string, enc EncoderStatus, cls ClassifierStatus, ret RetrieverStatus, metrics *prometheus.AppMetrics) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		enc:         enc,
		classifier:  cls,
		retriever:   ret,
		metrics:     metrics,
	}
}

// modelStatus is one entry of the health payload's models map.
type modelStatus struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Health reports overall service health and per-model state.
func (h *HealthHandler) Health(c *gin.Context) {
	snap := h.enc.Snapshot()

	overall := "healthy"
	if snap.State == encoder.StateFailed {
		overall = "degraded"
	}

	if h.metrics != nil {
		bertUp := 1.0
		if snap.State == encoder.StateFailed {
			bertUp = 0
		}
		h.metrics.HealthCheckStatus.WithLabelValues("clinical_bert").Set(bertUp)
		h.metrics.HealthCheckStatus.WithLabelValues("structured_classifier").Set(1)
		h.metrics.HealthCheckStatus.WithLabelValues("knowledge_retriever").Set(1)
	}

	bert := modelStatus{
		Status: string(snap.State),
		Mode:   string(snap.Mode),
		Model:  snap.ModelID,
		Error:  snap.LastError,
	}

	c.JSON(http.StatusOK, gin.H{
		"status": overall,
		"models": gin.H{
			"clinical_bert": bert,
			"structured_classifier": modelStatus{
				Status: "ready",
				Model:  h.classifier.Version(),
			},
			"knowledge_retriever": gin.H{
				"status":    "ready",
				"documents": h.retriever.Size(),
			},
		},
		"inference_mode": string(snap.Mode),
	})
}

// ModelsStatus returns detailed model metadata.
func (h *HealthHandler) ModelsStatus(c *gin.Context) {
	snap := h.enc.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"clinical_bert": gin.H{
			"state":         string(snap.State),
			"mode":          string(snap.Mode),
			"model":         snap.ModelID,
			"load_attempts": snap.LoadAttempts,
			"fell_back":     snap.FellBack,
			"last_error":    snap.LastError,
		},
		"structured_classifier": gin.H{
			"version":       h.classifier.Version(),
			"labels":        h.classifier.Labels(),
			"feature_count": h.classifier.FeatureCount(),
		},
		"knowledge_retriever": gin.H{
			"documents": h.retriever.Size(),
		},
	})
}

// Banner returns the service identity and its public endpoints.
func (h *HealthHandler) Banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.serviceName,
		"version": h.version,
		"endpoints": []string{
			"POST /analyze",
			"GET /health",
			"GET /models/status",
			"GET /metrics",
		},
	})
}
