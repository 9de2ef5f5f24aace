package logger

import (
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLogger(t *testing.T) {
	l := EnsureLogger(nil)
	require.NotNil(t, l)
	assert.IsType(t, &NoOpLogger{}, l)
	l.Info("dropped", "key", "value")
	assert.Same(t, l, l.With("k", "v"))

	custom := NewNoOpLogger()
	assert.Same(t, custom, EnsureLogger(custom))
}

func TestNew(t *testing.T) {
	l, err := New(sdklogging.Production, false)
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = New("", true)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
