package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/quix-labs/el-amqp-transport/internals/broker"
	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
)

// Mode selects how a Session holds its broker resources.
type Mode int

const (
	// Stateless opens a connection and channel for every publish and
	// releases both before returning.
	Stateless Mode = iota
	// Stateful opens once at construction and releases on Close.
	Stateful
)

func (m Mode) String() string {
	switch m {
	case Stateless:
		return "stateless"
	case Stateful:
		return "stateful"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "stateless":
		return Stateless, nil
	case "stateful":
		return Stateful, nil
	default:
		return Stateless, fmt.Errorf("invalid session mode: %s", s)
	}
}

type State int

const (
	Unopened State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var errNacked = errors.New("broker did not acknowledge the message")

// Session owns the connection and channel used to publish bulk payloads.
//
// Publish and Close are serialized by a mutex, so a single Session never
// publishes concurrently. Callers wanting parallel publishes use one Session
// per goroutine.
type Session struct {
	mu sync.Mutex

	config  broker.ConnectionConfig
	dialer  broker.Dialer
	mode    Mode
	confirm bool
	logger  zerolog.Logger

	state          State
	conn           broker.Connection
	channel        broker.Channel
	confirmChannel broker.Channel
}

type SessionOption func(*Session)

// WithConfirms puts channels in confirm mode and waits for the broker ack on
// every publish.
func WithConfirms() SessionOption {
	return func(s *Session) {
		s.confirm = true
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession builds a session. In Stateful mode the connection and channel are
// opened immediately and a failure is returned as a TransportError.
func NewSession(config broker.ConnectionConfig, dialer broker.Dialer, mode Mode, opts ...SessionOption) (*Session, error) {
	if dialer == nil {
		dialer = broker.AMQPDialer{}
	}
	s := &Session{
		config: config.WithDefaults(),
		dialer: dialer,
		mode:   mode,
		logger: zerolog.Nop(),
		state:  Unopened,
	}
	for _, opt := range opts {
		opt(s)
	}

	if mode == Stateful {
		conn, channel, err := s.open()
		if err != nil {
			return nil, err
		}
		s.conn, s.channel, s.state = conn, channel, Open
	}
	return s, nil
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Publish declares the exchange and sends payload to it. It blocks until the
// broker client returns, or until the broker ack arrives when confirms are on.
func (s *Session) Publish(ctx context.Context, payload string) (*types.PublishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return nil, types.ErrSessionClosed
	}
	if s.mode == Stateful {
		return s.publish(ctx, s.channel, payload)
	}
	return s.publishOnce(ctx, payload)
}

// Close releases held resources. The session cannot be used afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return nil
	}
	err := release(s.channel, s.conn)
	s.state = Closed
	s.conn, s.channel, s.confirmChannel = nil, nil, nil
	if err != nil {
		return types.NewTransportError("close", err)
	}
	return nil
}

func (s *Session) publishOnce(ctx context.Context, payload string) (result *types.PublishResult, err error) {
	conn, channel, err := s.open()
	if err != nil {
		return nil, err
	}
	s.state = Open

	defer func() {
		s.state = Unopened
		s.confirmChannel = nil
		releaseErr := release(channel, conn)
		if releaseErr == nil {
			return
		}
		s.logger.Warn().Err(releaseErr).Msg("Cannot release broker resources")
		var transportErr *types.TransportError
		if errors.As(err, &transportErr) {
			transportErr.Release = releaseErr
		}
	}()

	return s.publish(ctx, channel, payload)
}

func (s *Session) open() (broker.Connection, broker.Channel, error) {
	conn, err := s.dialer.Dial(s.config)
	if err != nil {
		return nil, nil, types.NewTransportError("connect", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		transportErr := types.NewTransportError("open channel", err)
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Cannot close connection")
			transportErr.Release = closeErr
		}
		return nil, nil, transportErr
	}
	return conn, channel, nil
}

func (s *Session) publish(ctx context.Context, channel broker.Channel, payload string) (*types.PublishResult, error) {
	err := channel.ExchangeDeclare(bulk.Exchange, bulk.ExchangeKind, true, false, false, false, nil)
	if err != nil {
		return nil, types.NewTransportError("declare exchange", err)
	}

	msg := amqp.Publishing{
		ContentType:     bulk.ContentType,
		ContentEncoding: bulk.ContentEncoding,
		Body:            []byte(payload),
	}

	if s.confirm {
		if confirmChannel, ok := channel.(broker.ConfirmChannel); ok {
			return s.publishConfirmed(ctx, confirmChannel, msg)
		}
		s.logger.Debug().Msg("Channel does not support confirms, publishing without")
	}

	err = channel.PublishWithContext(ctx, bulk.Exchange, bulk.RoutingKey, false, false, msg)
	if err != nil {
		return nil, types.NewTransportError("publish", err)
	}
	return &types.PublishResult{Success: true}, nil
}

func (s *Session) publishConfirmed(ctx context.Context, channel broker.ConfirmChannel, msg amqp.Publishing) (*types.PublishResult, error) {
	if s.confirmChannel != channel {
		if err := channel.Confirm(false); err != nil {
			return nil, types.NewTransportError("confirm", err)
		}
		s.confirmChannel = channel
	}

	confirmation, err := channel.PublishWithDeferredConfirmWithContext(ctx, bulk.Exchange, bulk.RoutingKey, false, false, msg)
	if err != nil {
		return nil, types.NewTransportError("publish", err)
	}
	if confirmation == nil {
		return &types.PublishResult{Success: true}, nil
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return nil, types.NewTransportError("confirm", err)
	}
	if !acked {
		return nil, types.NewTransportError("publish", errNacked)
	}
	return &types.PublishResult{Success: true, Confirmed: true}, nil
}

// release closes the channel then the connection, attempting both.
func release(channel broker.Channel, conn broker.Connection) error {
	var errs []error
	if channel != nil {
		if err := channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
