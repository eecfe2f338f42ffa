package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/averlon/keygate/logger"
)

// Default timing values for the gate.
const (
	// DefaultHeartbeatTimeout is the maximum silence after an observed
	// heartbeat before the link is declared dead.
	DefaultHeartbeatTimeout = 15 * time.Second

	// DefaultHeartbeatInterval is the period of the liveness check. It is
	// independent of message traffic.
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultReconnectDelay is the fixed delay between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultShutdownGrace is the grace-period hint passed to the shutdown
	// trigger so the host may attempt an orderly stop before a hard kill.
	DefaultShutdownGrace = 5 * time.Second
)

// Config holds all configuration for a Gate.
type Config struct {
	heartbeatTimeout  time.Duration
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	shutdownGrace     time.Duration
	eventBufferSize   int
	logger            logger.Logger
}

// NewConfig creates a gate configuration.
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		heartbeatTimeout:  DefaultHeartbeatTimeout,
		heartbeatInterval: DefaultHeartbeatInterval,
		reconnectDelay:    DefaultReconnectDelay,
		shutdownGrace:     DefaultShutdownGrace,
		eventBufferSize:   DefaultEventBufferSize,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.heartbeatInterval > cfg.heartbeatTimeout {
		return nil, fmt.Errorf("gate: heartbeat interval %v exceeds timeout %v",
			cfg.heartbeatInterval, cfg.heartbeatTimeout)
	}

	return cfg, nil
}

// HeartbeatTimeout returns the heartbeat staleness limit.
func (cfg *Config) HeartbeatTimeout() time.Duration { return cfg.heartbeatTimeout }

// HeartbeatInterval returns the liveness check period.
func (cfg *Config) HeartbeatInterval() time.Duration { return cfg.heartbeatInterval }

// ReconnectDelay returns the fixed delay between reconnect attempts.
func (cfg *Config) ReconnectDelay() time.Duration { return cfg.reconnectDelay }

// ShutdownGrace returns the grace-period hint for the shutdown trigger.
func (cfg *Config) ShutdownGrace() time.Duration { return cfg.shutdownGrace }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithHeartbeatTimeout sets the maximum silence after an observed heartbeat
// before the link is treated as dead.
func WithHeartbeatTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("gate: heartbeat timeout must be positive")
		}
		cfg.heartbeatTimeout = d

		return nil
	})
}

// WithHeartbeatInterval sets the liveness check period.
func WithHeartbeatInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("gate: heartbeat interval must be positive")
		}
		cfg.heartbeatInterval = d

		return nil
	})
}

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("gate: reconnect delay must be positive")
		}
		cfg.reconnectDelay = d

		return nil
	})
}

// WithShutdownGrace sets the grace-period hint passed to the shutdown trigger.
func WithShutdownGrace(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("gate: shutdown grace must not be negative")
		}
		cfg.shutdownGrace = d

		return nil
	})
}

// WithEventBufferSize sets the default channel buffer for event subscribers.
func WithEventBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return errors.New("gate: event buffer size must be >= 1")
		}
		cfg.eventBufferSize = n

		return nil
	})
}

// WithLogger sets the logger for the gate.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("gate: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
