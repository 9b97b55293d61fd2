package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.  Codes
// are grouped by module prefix ("SYN_", "DS_", ...) so that log pipelines can
// bucket failures without parsing messages.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeCancelled          ErrorCode = "COMMON_017"
)

// Aliases used by call sites that predate the module-prefixed codes.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Synthon space / accessor error codes
const (
	ErrCodeReactionNotFound ErrorCode = "SYN_001"
	ErrCodePositionNotFound ErrorCode = "SYN_002"
	ErrCodeFragmentNotFound ErrorCode = "SYN_003"
	ErrCodeSynthonSetEmpty  ErrorCode = "SYN_004"
	ErrCodeSynthonInvalid   ErrorCode = "SYN_005"
)

// Downsampling error codes
const (
	ErrCodeDownsampleRequestInvalid ErrorCode = "DS_001"
	ErrCodeDownsampleUnitFailed     ErrorCode = "DS_002"
)

// Chemistry collaborator error codes
const (
	ErrCodeAssemblyFailed   ErrorCode = "MOL_001"
	ErrCodeConformerFailed  ErrorCode = "MOL_002"
	ErrCodeDescriptorFailed ErrorCode = "MOL_003"
)

// Local optimization error codes
const (
	ErrCodeOptimizeRequestInvalid ErrorCode = "OPT_001"
	ErrCodeSeedScoringFailed      ErrorCode = "OPT_002"
)

// Screening error codes
const (
	ErrCodeSchedulerConfigInvalid ErrorCode = "SCR_001"
	ErrCodeOrchestratorClosed     ErrorCode = "SCR_002"
	ErrCodeScreeningConfigInvalid ErrorCode = "SCR_003"
)

// I/O error codes
const (
	ErrCodeSeedParseFailed   ErrorCode = "IO_001"
	ErrCodeResultWriteFailed ErrorCode = "IO_002"
	ErrCodeTableParseFailed  ErrorCode = "IO_003"
	ErrCodeArchiveFailed     ErrorCode = "IO_004"
	ErrCodePublishFailed     ErrorCode = "IO_005"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "operation timed out",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeCancelled:          "operation cancelled",

	ErrCodeReactionNotFound: "reaction not found",
	ErrCodePositionNotFound: "fragment position not found",
	ErrCodeFragmentNotFound: "fragment not found",
	ErrCodeSynthonSetEmpty:  "synthon set is empty",
	ErrCodeSynthonInvalid:   "invalid synthon record",

	ErrCodeDownsampleRequestInvalid: "invalid downsampling request",
	ErrCodeDownsampleUnitFailed:     "downsampling unit failed",

	ErrCodeAssemblyFailed:   "fragment assembly failed",
	ErrCodeConformerFailed:  "conformer generation failed",
	ErrCodeDescriptorFailed: "descriptor computation failed",

	ErrCodeOptimizeRequestInvalid: "invalid optimization request",
	ErrCodeSeedScoringFailed:      "seed assembly could not be scored",

	ErrCodeSchedulerConfigInvalid: "invalid reaction scheduler configuration",
	ErrCodeOrchestratorClosed:     "screening orchestrator is closed",
	ErrCodeScreeningConfigInvalid: "invalid screening configuration",

	ErrCodeSeedParseFailed:   "failed to parse seed file",
	ErrCodeResultWriteFailed: "failed to write results",
	ErrCodeTableParseFailed:  "failed to parse synthon table",
	ErrCodeArchiveFailed:     "failed to archive results",
	ErrCodePublishFailed:     "failed to publish results",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsFatal reports whether a code signals an infrastructure failure after which
// a screening run cannot reliably continue.
func IsFatal(code ErrorCode) bool {
	switch code {
	case ErrCodeResultWriteFailed, ErrCodeArchiveFailed, ErrCodePublishFailed, ErrCodeDownsampleUnitFailed:
		return true
	}
	return false
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// HTTPStatusForCode maps an ErrorCode to the status returned by the status
// server.
func HTTPStatusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeBadRequest, ErrCodeDownsampleRequestInvalid, ErrCodeOptimizeRequestInvalid,
		ErrCodeSchedulerConfigInvalid, ErrCodeScreeningConfigInvalid:
		return 400
	case ErrCodeNotFound, ErrCodeReactionNotFound, ErrCodePositionNotFound, ErrCodeFragmentNotFound:
		return 404
	case ErrCodeConflict:
		return 409
	case ErrCodeValidation:
		return 422
	case ErrCodeServiceUnavailable, ErrCodeOrchestratorClosed:
		return 503
	case ErrCodeTimeout:
		return 504
	default:
		return 500
	}
}

// IsClientError reports whether the code maps to a 4xx status.
func IsClientError(code ErrorCode) bool {
	s := HTTPStatusForCode(code)
	return s >= 400 && s < 500
}
