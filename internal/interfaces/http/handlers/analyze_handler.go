package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthsync/hybrid-engine/pkg/errors"
	types "github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// Analyzer runs one diagnosis request end to end.
type Analyzer interface {
	Analyze(ctx context.Context, pc *types.PatientCase) (*types.HybridDiagnosisResult, error)
}

// AnalyzeHandler serves POST /analyze.
type AnalyzeHandler struct {
	analyzer Analyzer
}

// NewAnalyzeHandler returns the handler for the analysis endpoint.
func NewAnalyzeHandler(analyzer Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer}
}

// Analyze decodes the patient case, runs the pipeline, and returns the fused
// result.  Validation failures map to 422; encoder unavailability to 503.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var pc types.PatientCase
	if err := c.ShouldBindJSON(&pc); err != nil {
		writeAppError(c, errors.Validation("request body is not a valid patient case").WithCause(err))
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), &pc)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
