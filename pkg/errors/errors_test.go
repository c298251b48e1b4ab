package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
}

func TestCloneMatchesTemplate(t *testing.T) {
	cloned := Clone(ErrTokenInvalid, "token revoked")
	assert.True(t, errors.Is(cloned, ErrTokenInvalid))
	assert.False(t, errors.Is(cloned, ErrTokenExpired))
	assert.Equal(t, "invalid token", ErrTokenInvalid.Message)
}

func TestWithDetailDoesNotMutateTemplate(t *testing.T) {
	limited := WithDetail(ErrTooManyRequests, "retry_after_seconds", 42)
	assert.Equal(t, 42, limited.Details["retry_after_seconds"])
	assert.Nil(t, ErrTooManyRequests.Details)
}

func TestWithCauseKeepsPublicMessage(t *testing.T) {
	cause := errors.New("jti revoked")
	err := WithCause(ErrTokenInvalid, cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "invalid token", err.Message)
	assert.Contains(t, err.Error(), "jti revoked")
}
