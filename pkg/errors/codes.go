package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeExternalService    ErrorCode = "COMMON_013"
)

// Sentinel pseudo-codes used by GetCode.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Encoder Module Error Codes
const (
	// ErrCodeEncoderUnavailable means neither the local model nor the remote
	// inference path could produce an embedding.
	ErrCodeEncoderUnavailable ErrorCode = "ENC_001"

	// ErrCodeRemoteInferenceTimeout means the remote inference API did not
	// answer within the configured deadline.  Retryable.
	ErrCodeRemoteInferenceTimeout ErrorCode = "ENC_002"

	// ErrCodeEncoderLoadFailed means a single load attempt (local or remote
	// probe) failed; the manager may still fall back to another path.
	ErrCodeEncoderLoadFailed ErrorCode = "ENC_003"

	// ErrCodeRemoteInferenceFailed means the remote inference API answered
	// with an error or an unparseable payload.
	ErrCodeRemoteInferenceFailed ErrorCode = "ENC_004"
)

// Structured Classifier Module Error Codes
const (
	ErrCodeClassifierUnavailable     ErrorCode = "CLS_001"
	ErrCodeClassifierArtifactInvalid ErrorCode = "CLS_002"
	ErrCodeClassifierFeatureMismatch ErrorCode = "CLS_003"
)

// Knowledge Retriever Module Error Codes
const (
	ErrCodeRetrievalFailed     ErrorCode = "RET_001"
	ErrCodeCorpusLoadFailed    ErrorCode = "RET_002"
	ErrCodeEmbeddingDimInvalid ErrorCode = "RET_003"
)

// Fusion Module Error Codes
const (
	ErrCodeFusionWeightsInvalid ErrorCode = "FUS_001"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeEncoderUnavailable:     http.StatusServiceUnavailable,
	ErrCodeRemoteInferenceTimeout: http.StatusGatewayTimeout,
	ErrCodeEncoderLoadFailed:      http.StatusServiceUnavailable,
	ErrCodeRemoteInferenceFailed:  http.StatusBadGateway,

	ErrCodeClassifierUnavailable:     http.StatusServiceUnavailable,
	ErrCodeClassifierArtifactInvalid: http.StatusInternalServerError,
	ErrCodeClassifierFeatureMismatch: http.StatusInternalServerError,

	ErrCodeRetrievalFailed:     http.StatusInternalServerError,
	ErrCodeCorpusLoadFailed:    http.StatusInternalServerError,
	ErrCodeEmbeddingDimInvalid: http.StatusInternalServerError,

	ErrCodeFusionWeightsInvalid: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeExternalService:    "external service error",

	ErrCodeEncoderUnavailable:     "text encoder unavailable",
	ErrCodeRemoteInferenceTimeout: "remote inference timed out",
	ErrCodeEncoderLoadFailed:      "text encoder load failed",
	ErrCodeRemoteInferenceFailed:  "remote inference failed",

	ErrCodeClassifierUnavailable:     "structured classifier unavailable",
	ErrCodeClassifierArtifactInvalid: "classifier artifact invalid",
	ErrCodeClassifierFeatureMismatch: "feature vector does not match classifier schema",

	ErrCodeRetrievalFailed:     "knowledge retrieval failed",
	ErrCodeCorpusLoadFailed:    "knowledge corpus load failed",
	ErrCodeEmbeddingDimInvalid: "embedding dimension mismatch",

	ErrCodeFusionWeightsInvalid: "fusion weights invalid",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
