// Package errors provides structured error handling for catalogmatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, data directory)
//   - 3XX: Network errors (language model, embedding endpoint, cache)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Matching pipeline errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and data directory errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates errors talking to remote collaborators.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryPipeline indicates failures of the normalize/retrieve/select pipeline.
	CategoryPipeline Category = "PIPELINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the whole session. No output is written.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current operation.
	SeverityError Severity = "ERROR"
	// SeverityWarning degrades the current operation, which continues.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexLocked    = "ERR_207_INDEX_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidCatalog    = "ERR_407_INVALID_CATALOG"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"

	// Pipeline errors (600-699)
	ErrCodeNormalizationFailure = "ERR_601_NORMALIZATION_FAILURE"
	ErrCodeRetrievalUnavailable = "ERR_602_RETRIEVAL_UNAVAILABLE"
	ErrCodeParseFailure         = "ERR_603_PARSE_FAILURE"
	ErrCodeContractViolation    = "ERR_604_CONTRACT_VIOLATION"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_601_..." -> '6'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryPipeline
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeNormalizationFailure, ErrCodeParseFailure, ErrCodeContractViolation,
		ErrCodeCorruptIndex:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeRetrievalUnavailable:
		return true
	default:
		return false
	}
}
