package gateway

import (
	"errors"
	"time"

	"github.com/averlon/keygate/logger"
)

// Defaults for the gateway server.
const (
	// DefaultServerScanTimeout is how long the server waits for a token to
	// be presented before answering a scan request with a denial.
	DefaultServerScanTimeout = 15 * time.Second

	// DefaultAuthWindow is how long a granted session stays visible in
	// status reports.
	DefaultAuthWindow = 60 * time.Second

	// DefaultRequestTimeout bounds reading one request line from a client.
	DefaultRequestTimeout = 10 * time.Second
)

// ServerConfig holds configuration for a gateway Server.
type ServerConfig struct {
	socketPath    string // unix domain socket, empty disables
	tcpAddr       string // host:port, empty disables
	allowlistPath string
	scanTimeout   time.Duration
	authWindow    time.Duration
	logger        logger.Logger
}

// NewServerConfig creates a server configuration. At least one of the
// listen endpoints must be set via options.
func NewServerConfig(allowlistPath string, opts ...ServerOption) (*ServerConfig, error) {
	if allowlistPath == "" {
		return nil, errors.New("gateway: allowlist path is empty")
	}

	cfg := &ServerConfig{
		allowlistPath: allowlistPath,
		scanTimeout:   DefaultServerScanTimeout,
		authWindow:    DefaultAuthWindow,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.socketPath == "" && cfg.tcpAddr == "" {
		return nil, errors.New("gateway: no listen endpoint configured")
	}

	return cfg, nil
}

// SocketPath returns the unix domain socket path, or empty when disabled.
func (cfg *ServerConfig) SocketPath() string { return cfg.socketPath }

// TCPAddr returns the TCP listen address, or empty when disabled.
func (cfg *ServerConfig) TCPAddr() string { return cfg.tcpAddr }

// AllowlistPath returns the allowlist file path.
func (cfg *ServerConfig) AllowlistPath() string { return cfg.allowlistPath }

// ScanTimeout returns the server-side scan wait limit.
func (cfg *ServerConfig) ScanTimeout() time.Duration { return cfg.scanTimeout }

// AuthWindow returns the session validity window.
func (cfg *ServerConfig) AuthWindow() time.Duration { return cfg.authWindow }

// ServerOption is a functional option for configuring a ServerConfig.
type ServerOption interface {
	apply(*ServerConfig) error
}

type serverOptFunc func(*ServerConfig) error

func (f serverOptFunc) apply(cfg *ServerConfig) error { return f(cfg) }

// WithUnixSocket enables listening on a unix domain socket.
func WithUnixSocket(path string) ServerOption {
	return serverOptFunc(func(cfg *ServerConfig) error {
		if path == "" {
			return errors.New("gateway: socket path is empty")
		}
		cfg.socketPath = path

		return nil
	})
}

// WithTCPListen enables listening on a TCP endpoint.
func WithTCPListen(addr string) ServerOption {
	return serverOptFunc(func(cfg *ServerConfig) error {
		if addr == "" {
			return errors.New("gateway: tcp address is empty")
		}
		cfg.tcpAddr = addr

		return nil
	})
}

// WithServerScanTimeout sets the server-side scan wait limit.
func WithServerScanTimeout(d time.Duration) ServerOption {
	return serverOptFunc(func(cfg *ServerConfig) error {
		if d <= 0 {
			return errors.New("gateway: scan timeout must be positive")
		}
		cfg.scanTimeout = d

		return nil
	})
}

// WithAuthWindow sets the session validity window.
func WithAuthWindow(d time.Duration) ServerOption {
	return serverOptFunc(func(cfg *ServerConfig) error {
		if d <= 0 {
			return errors.New("gateway: auth window must be positive")
		}
		cfg.authWindow = d

		return nil
	})
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(l logger.Logger) ServerOption {
	return serverOptFunc(func(cfg *ServerConfig) error {
		if l == nil {
			return errors.New("gateway: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
