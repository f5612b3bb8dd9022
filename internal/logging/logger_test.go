package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContextRoundTrip(t *testing.T) {
	l := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, zap.L(), FromContext(context.Background()))
	assert.Same(t, zap.L(), FromContext(ContextWithLogger(context.Background(), nil)))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("order-api", "test")
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
