package errors

import (
	stderrors "errors"
	"fmt"
)

// MatchError is the structured error type for catalogmatch.
// It carries enough context for logging, CLI presentation and the
// fatal-versus-degraded decision made by the batch orchestrator.
type MatchError struct {
	// Code is the unique error code (e.g., "ERR_604_CONTRACT_VIOLATION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *MatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// Is matches another MatchError by code, so errors.Is works against
// the sentinel values below regardless of message or cause.
func (e *MatchError) Is(target error) bool {
	if t, ok := target.(*MatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MatchError) WithDetail(key, value string) *MatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MatchError) WithSuggestion(suggestion string) *MatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MatchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MatchError {
	return &MatchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MatchError from an existing error.
// Returns nil for a nil error.
func Wrap(code string, err error) *MatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrNormalizationFailure = &MatchError{Code: ErrCodeNormalizationFailure}
	ErrRetrievalUnavailable = &MatchError{Code: ErrCodeRetrievalUnavailable}
	ErrParseFailure         = &MatchError{Code: ErrCodeParseFailure}
	ErrContractViolation    = &MatchError{Code: ErrCodeContractViolation}
)

// ErrNilDependency is returned by constructors when a required collaborator is nil.
var ErrNilDependency = stderrors.New("nil dependency")

// NormalizationFailure reports that raw input could not be turned into queries.
func NormalizationFailure(message string, cause error) *MatchError {
	return New(ErrCodeNormalizationFailure, message, cause).
		WithSuggestion("Check the language model endpoint and that the input mentions at least one product")
}

// RetrievalUnavailable reports that the vector recall source could not serve a query.
func RetrievalUnavailable(message string, cause error) *MatchError {
	return New(ErrCodeRetrievalUnavailable, message, cause)
}

// ParseFailure reports a selection response that is not a well-formed decision array.
func ParseFailure(message string, cause error) *MatchError {
	return New(ErrCodeParseFailure, message, cause)
}

// ContractViolation reports a decision list that cannot be mapped 1:1 onto the batch.
func ContractViolation(message string) *MatchError {
	return New(ErrCodeContractViolation, message, nil)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *MatchError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
func NetworkError(message string, cause error) *MatchError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MatchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IsNormalizationFailure reports whether err is a NormalizationFailure.
func IsNormalizationFailure(err error) bool {
	return stderrors.Is(err, ErrNormalizationFailure)
}

// IsRetrievalUnavailable reports whether err is a RetrievalUnavailable.
func IsRetrievalUnavailable(err error) bool {
	return stderrors.Is(err, ErrRetrievalUnavailable)
}

// IsParseFailure reports whether err is a ParseFailure.
func IsParseFailure(err error) bool {
	return stderrors.Is(err, ErrParseFailure)
}

// IsContractViolation reports whether err is a ContractViolation.
func IsContractViolation(err error) bool {
	return stderrors.Is(err, ErrContractViolation)
}

// IsRetryable checks if any MatchError in the chain is retryable.
func IsRetryable(err error) bool {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if any MatchError in the chain has fatal severity.
func IsFatal(err error) bool {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first MatchError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}
