package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := ErrInternalServer.WithInternal(inner)

	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "boom")
}

func TestFromErrorPassesThroughAppError(t *testing.T) {
	got := FromError(ErrLocked)
	require.Same(t, ErrLocked, got)
}

func TestFromErrorWrapsExpiredToken(t *testing.T) {
	err := fmt.Errorf("reset failed: %w", NewExpiredToken("reset_password"))

	appErr := FromError(err)
	require.Equal(t, "TOKEN_EXPIRED", appErr.Code)
	require.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	require.Contains(t, appErr.Message, "reset_password")

	expired, ok := IsExpiredToken(err)
	require.True(t, ok)
	require.Equal(t, "reset_password", expired.Kind)
}

func TestFromErrorWrapsAccessDenied(t *testing.T) {
	appErr := FromError(NewAccessDenied("read", "Article"))
	require.Equal(t, "ACCESS_DENIED", appErr.Code)
	require.Equal(t, http.StatusForbidden, appErr.StatusCode)
	require.Contains(t, appErr.Message, "read")
	require.Contains(t, appErr.Message, "Article")
}

func TestAccessDeniedDefaultMessage(t *testing.T) {
	err := NewAccessDenied("", "")
	require.Equal(t, "You are not authorized to access this page", err.Error())
}

func TestFromErrorWrapsValidation(t *testing.T) {
	appErr := FromError(NewValidation("email", "already exists"))
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	require.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	require.Equal(t, "email: already exists", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("db gone"))
	require.Equal(t, ErrInternalServer.Code, appErr.Code)
	require.ErrorContains(t, appErr, "db gone")
}
