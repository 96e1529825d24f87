// Package nats manages the connection a runner publishes records over
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/config"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ConnectionConfig holds configuration for NATS connection
type ConnectionConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string

	// Name is the client name for identifying this connection
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for unlimited reconnects
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration

	// Timeout is the connection timeout
	Timeout time.Duration

	// Token is an optional authentication token
	Token string

	// Username and Password are optional credentials
	Username string
	Password string

	// Logger receives connection state changes (nil for no logging)
	Logger *zap.Logger
}

// DefaultConnectionConfig returns a configuration with sensible defaults
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:           url,
		Name:          config.DefaultNATSName,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// FromConfig builds the connection settings from the runtime configuration
func FromConfig(cfg *config.Config, logger *zap.Logger) *ConnectionConfig {
	cc := DefaultConnectionConfig(cfg.NATSURL)
	if cfg.NATSName != "" {
		cc.Name = cfg.NATSName
	}
	cc.Logger = logger
	return cc
}

// options translates cfg into nats.Options
func options(cfg *ConnectionConfig) []nats.Option {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	return opts
}

// Connect establishes a connection to NATS. It gives up when ctx is done.
func Connect(ctx context.Context, cfg *ConnectionConfig) (*nats.Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connection config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty: %w", sdkerrors.ErrInvalidConfig)
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		conn, err := nats.Connect(cfg.URL, options(cfg)...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// close a connection that completes after we gave up
		go func() {
			if res := <-resultCh; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %v: %w", res.err, sdkerrors.ErrNotConnected)
		}
		return res.conn, nil
	}
}

// Close drains conn so in-flight publishes complete, then closes it
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}

// IsConnected checks if the connection is active
func IsConnected(conn *nats.Conn) bool {
	return conn != nil && conn.IsConnected()
}
