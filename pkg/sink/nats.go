package sink

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/record"
)

// HeaderRunner carries the ID of the runner that produced a record
const HeaderRunner = "Daedalus-Runner"

// Publisher is the subset of *nats.Conn the NATS sink uses
type Publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSConfig configures a NATS sink
type NATSConfig struct {
	Subject      string
	Attributes   []string
	RunnerID     string
	FlushTimeout time.Duration
}

// NATS publishes each record as a JSON Envelope on a subject
type NATS struct {
	pub       Publisher
	cfg       NATSConfig
	logger    *zap.Logger
	published atomic.Int64
}

// NewNATS creates a NATS sink publishing through pub
func NewNATS(pub Publisher, cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	if pub == nil {
		return nil, sdkerrors.ErrNotConnected
	}
	if strings.TrimSpace(cfg.Subject) == "" || strings.ContainsAny(cfg.Subject, " \t\r\n") {
		return nil, fmt.Errorf("subject %q: %w", cfg.Subject, sdkerrors.ErrInvalidSubject)
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{pub: pub, cfg: cfg, logger: logger}, nil
}

// Emit publishes rec
func (n *NATS) Emit(ctx context.Context, rec record.Positional) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(n.cfg.Attributes, rec)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(n.cfg.Subject)
	msg.Data = data
	if n.cfg.RunnerID != "" {
		msg.Header.Set(HeaderRunner, n.cfg.RunnerID)
	}

	if err := n.pub.PublishMsg(msg); err != nil {
		n.logger.Error("Failed to publish record",
			zap.String("subject", n.cfg.Subject),
			zap.Error(err))
		return sdkerrors.NewError(sdkerrors.CodeSink, "publish to "+n.cfg.Subject,
			fmt.Errorf("%w: %v", sdkerrors.ErrPublishFailed, err))
	}
	n.published.Add(1)
	return nil
}

// Published returns the number of records published
func (n *NATS) Published() int64 {
	return n.published.Load()
}

// Close flushes pending publishes. The connection itself is owned by the caller.
func (n *NATS) Close(ctx context.Context) error {
	timeout := n.cfg.FlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := n.pub.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush %s: %w", n.cfg.Subject, err)
	}
	n.logger.Debug("NATS sink closed",
		zap.String("subject", n.cfg.Subject),
		zap.Int64("published", n.published.Load()))
	return nil
}
