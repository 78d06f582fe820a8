package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAcceptsInvalidLevel(t *testing.T) {
	require.NoError(t, Init("not-a-level"))
	require.NotNil(t, Logger())
}

func TestWithModuleReturnsChild(t *testing.T) {
	require.NoError(t, Init("debug"))
	require.NotNil(t, WithModule("auth"))
}
