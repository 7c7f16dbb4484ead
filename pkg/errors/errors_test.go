package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorPassthrough(t *testing.T) {
	err := Clone(ErrInvalidState, "pre-registration is not pending")
	got := FromError(err)
	assert.Equal(t, ErrInvalidState.Code, got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.Equal(t, "pre-registration is not pending", got.Message)
}

func TestFromErrorWrapped(t *testing.T) {
	inner := Clone(ErrCapacityExceeded, "no seats available for course")
	wrapped := fmt.Errorf("promote: %w", inner)
	got := FromError(wrapped)
	assert.Equal(t, ErrCapacityExceeded.Code, got.Code)
}

func TestFromErrorUnknown(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrDuplicate, "receipt number already used")
	assert.Equal(t, "receipt number already used", clone.Message)
	assert.Equal(t, "duplicate constraint violation", ErrDuplicate.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	err := Clone(ErrContention, "")
	assert.True(t, Is(err, ErrContention))
	assert.False(t, Is(err, ErrDuplicate))
	assert.False(t, Is(nil, ErrDuplicate))
	assert.False(t, Is(errors.New("plain"), ErrDuplicate))
}

func TestContentionIsRetryable(t *testing.T) {
	require.True(t, ErrContention.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, ErrContention.Status)

	// Retryability survives cloning with a new message.
	clone := Clone(ErrContention, "lock wait timeout on course row")
	assert.True(t, clone.Retryable)
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("driver failure")
	err := Wrap(inner, ErrInternal.Code, ErrInternal.Status, "failed to record payment")
	assert.True(t, errors.Is(err, inner))
}
