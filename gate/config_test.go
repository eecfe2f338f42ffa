package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averlon/keygate/logger"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultHeartbeatTimeout, cfg.HeartbeatTimeout())
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval())
	assert.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay())
	assert.Equal(t, DefaultShutdownGrace, cfg.ShutdownGrace())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithHeartbeatTimeout(30*time.Second),
		WithHeartbeatInterval(5*time.Second),
		WithReconnectDelay(time.Second),
		WithShutdownGrace(10*time.Second),
		WithEventBufferSize(64),
		WithLogger(logger.NewMockLogger()),
	)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace())
}

func TestNewConfig_IntervalExceedsTimeout(t *testing.T) {
	_, err := NewConfig(
		WithHeartbeatTimeout(time.Second),
		WithHeartbeatInterval(2*time.Second),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat interval")
}

func TestNewConfig_InvalidValues(t *testing.T) {
	_, err := NewConfig(WithHeartbeatTimeout(0))
	require.Error(t, err)

	_, err = NewConfig(WithHeartbeatInterval(-time.Second))
	require.Error(t, err)

	_, err = NewConfig(WithReconnectDelay(0))
	require.Error(t, err)

	_, err = NewConfig(WithShutdownGrace(-time.Second))
	require.Error(t, err)

	_, err = NewConfig(WithEventBufferSize(0))
	require.Error(t, err)

	_, err = NewConfig(WithLogger(nil))
	require.Error(t, err)
}
