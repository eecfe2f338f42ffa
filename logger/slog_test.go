package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlog(t *testing.T) {
	l := NewSlog(InfoLevel, false)
	require.NotNil(t, l)

	assert.Equal(t, InfoLevel, l.Level())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())

	child := l.With("component", "gate")
	require.NotNil(t, child)
	assert.Equal(t, DebugLevel, child.Level())
}

func TestDefaultLogger(t *testing.T) {
	l := GetLogger()
	require.NotNil(t, l)

	prev := l.Level()
	defer SetLevel(prev)

	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLogger().Level())
}

func TestMockLogger(t *testing.T) {
	ml := NewMockLogger()
	ml.On("Info", "hello", []any{"k", "v"}).Return()

	ml.Info("hello", "k", "v")
	ml.AssertExpectations(t)
}
