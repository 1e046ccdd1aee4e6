package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal},
		{ErrCodeStorageUnavailable, CategoryStorage, SeverityError},
		{ErrCodeEmbeddingFailed, CategoryProvider, SeverityWarning},
		{ErrCodeRerankerFailed, CategoryProvider, SeverityWarning},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityError},
		{ErrCodeDimensionMismatch, CategoryValidation, SeverityError},
		{ErrCodeInternal, CategoryInternal, SeverityError},
		{ErrCodeSignalFailed, CategoryInternal, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, New(ErrCodeProviderTimeout, "", nil).Retryable)
	assert.True(t, New(ErrCodeStoreLocked, "", nil).Retryable)
	assert.False(t, New(ErrCodeInvalidQuery, "", nil).Retryable)
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestErrorFormatting(t *testing.T) {
	err := InvalidQuery("query text is empty")
	assert.Equal(t, "[ERR_401_INVALID_QUERY] query text is empty", err.Error())
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", InvalidQuery("empty"))
	assert.True(t, stderrors.Is(wrapped, InvalidQuery("anything")))
	assert.False(t, stderrors.Is(wrapped, Internal("other", nil)))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(ErrCodeStoreOpen, cause)
	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStoreOpen, nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeSignalFailed, "bm25 read failed", nil).
		WithDetail("signal", "bm25").
		WithSuggestion("reindex")

	assert.Equal(t, "bm25", err.Details["signal"])
	assert.Equal(t, "reindex", err.Suggestion)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeCorruptIndex, "", nil)))
	assert.False(t, IsFatal(New(ErrCodeInternal, "", nil)))
	assert.False(t, IsFatal(nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := StorageUnavailable("all signals failed", nil)
	assert.Equal(t, ErrCodeStorageUnavailable, GetCode(err))
	assert.Equal(t, CategoryStorage, GetCategory(err))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
