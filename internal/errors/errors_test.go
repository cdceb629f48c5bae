package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an original error
	cause := stderrors.New("connection refused")

	// When: wrapping it as a retrieval failure
	err := RetrievalUnavailable("vector recall failed", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))
}

func TestMatchError_Error_IncludesCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *MatchError
		expected string
	}{
		{
			name:     "normalization failure",
			err:      NormalizationFailure("model returned no items", nil),
			expected: "[ERR_601_NORMALIZATION_FAILURE] model returned no items",
		},
		{
			name:     "parse failure",
			err:      ParseFailure("response is not a JSON array", nil),
			expected: "[ERR_603_PARSE_FAILURE] response is not a JSON array",
		},
		{
			name:     "contract violation",
			err:      ContractViolation("2 decisions for 3 queries"),
			expected: "[ERR_604_CONTRACT_VIOLATION] 2 decisions for 3 queries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestMatchError_Is_MatchesSentinelThroughWrapping(t *testing.T) {
	// Given: a contract violation wrapped by fmt.Errorf
	err := fmt.Errorf("batch: %w", ContractViolation("count mismatch"))

	// Then: the taxonomy helpers see through the wrapping
	assert.True(t, IsContractViolation(err))
	assert.False(t, IsParseFailure(err))
	assert.False(t, IsNormalizationFailure(err))
	assert.Equal(t, ErrCodeContractViolation, GetCode(err))
}

func TestSeverity_PipelineTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       *MatchError
		fatal     bool
		retryable bool
		category  Category
	}{
		{"normalization is fatal", NormalizationFailure("x", nil), true, false, CategoryPipeline},
		{"retrieval degrades", RetrievalUnavailable("x", nil), false, true, CategoryPipeline},
		{"parse is fatal", ParseFailure("x", nil), true, false, CategoryPipeline},
		{"contract is fatal", ContractViolation("x"), true, false, CategoryPipeline},
		{"config error", ConfigError("x", nil), false, false, CategoryConfig},
		{"network error", NetworkError("x", nil), false, true, CategoryNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.category, tt.err.Category)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_AddsContext(t *testing.T) {
	err := ContractViolation("count mismatch").
		WithDetail("queries", "3").
		WithDetail("decisions", "2")

	assert.Equal(t, "3", err.Details["queries"])
	assert.Equal(t, "2", err.Details["decisions"])
}

func TestFormatForCLI(t *testing.T) {
	// Given: a normalization failure with a cause
	err := NormalizationFailure("language model call failed", stderrors.New("timeout"))

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, cause, hint and code are all present
	assert.Contains(t, out, "Error: language model call failed")
	assert.Contains(t, out, "Cause: timeout")
	assert.Contains(t, out, "Hint:")
	assert.Contains(t, out, "Code: ERR_601_NORMALIZATION_FAILURE")
}

func TestFormatForCLI_PlainError(t *testing.T) {
	out := FormatForCLI(stderrors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs_StableDetailOrder(t *testing.T) {
	err := ContractViolation("mismatch").WithDetail("z", "1").WithDetail("a", "2")

	attrs := LogAttrs(err)

	require.Len(t, attrs, 12)
	assert.Equal(t, "detail_a", attrs[8])
	assert.Equal(t, "detail_z", attrs[10])
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(stderrors.New("plain")))
}

func TestFormatForLog(t *testing.T) {
	err := NormalizationFailure("language model call failed", stderrors.New("timeout"))

	out := FormatForLog(err)

	assert.True(t, strings.HasPrefix(out, "[ERR_601_NORMALIZATION_FAILURE] language model call failed: timeout (hint: "))
	assert.NotContains(t, out, "\n")
	assert.Equal(t, "["+ErrCodeInternal+"] boom", FormatForLog(stderrors.New("boom")))
	assert.Empty(t, FormatForLog(nil))
}
