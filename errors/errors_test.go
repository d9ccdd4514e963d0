package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf("error: %s %d", "test", 42)
	require.NotNil(t, err)
	assert.Equal(t, "error: test 42", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

func TestSentinelChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", ErrValidation, IsValidation},
		{"not found", ErrNotFound, IsNotFound},
		{"conflict", ErrConflict, IsConflict},
		{"stale result", ErrStaleResult, IsStaleResult},
		{"target resolution", ErrTargetResolution, IsTargetResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(Wrap(tt.err, "context")))
			assert.False(t, tt.check(New("unrelated")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.False(t, IsValidation(ErrNotFound))
	assert.False(t, IsNotFound(ErrConflict))
	assert.False(t, IsConflict(ErrStaleResult))
	assert.False(t, IsStaleResult(ErrConflict))
	assert.False(t, IsTargetResolution(ErrValidation))
}

func TestFormattedConstructors(t *testing.T) {
	err := NewValidationError("field %s is bad", "hostname")
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "field hostname is bad")

	err = NewNotFoundError("beacon %s", "BCN_1")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "beacon BCN_1")

	err = NewConflictError("job %s already %s", "JOB_1", "completed")
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "already completed")
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("error"), "try this fix")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}
