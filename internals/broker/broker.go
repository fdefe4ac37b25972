// Package broker narrows the AMQP client down to the capabilities the
// transport needs: open a connection, open a channel, declare an exchange,
// publish and close.
package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5672
	DefaultUsername    = "guest"
	DefaultPassword    = "guest"
	DefaultVirtualHost = "/"
	DefaultHeartbeat   = 10 * time.Second
)

// ConnectionConfig is copied into a session at construction and never mutated
// afterwards. Timeouts are handed to the AMQP client as is.
type ConnectionConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	VirtualHost       string
	ConnectionTimeout time.Duration
	Heartbeat         time.Duration
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Host:        DefaultHost,
		Port:        DefaultPort,
		Username:    DefaultUsername,
		Password:    DefaultPassword,
		VirtualHost: DefaultVirtualHost,
		Heartbeat:   DefaultHeartbeat,
	}
}

// WithDefaults fills every empty field with its default.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Username == "" {
		c.Username = d.Username
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	if c.VirtualHost == "" {
		c.VirtualHost = d.VirtualHost
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = d.Heartbeat
	}
	return c
}

func (c ConnectionConfig) URI() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    c.VirtualHost,
	}.String()
}

// String is safe to log.
func (c ConnectionConfig) String() string {
	return fmt.Sprintf("amqp://%s@%s:%d%s", c.Username, c.Host, c.Port, c.VirtualHost)
}

type Dialer interface {
	Dial(config ConnectionConfig) (Connection, error)
}

type Connection interface {
	Channel() (Channel, error)
	Close() error
}

type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Confirmation is the pending broker ack of one publish.
type Confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// ConfirmChannel is implemented by channels able to report broker acks. A nil
// Confirmation means the channel is not in confirm mode.
type ConfirmChannel interface {
	Channel
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (Confirmation, error)
}

// DialerFunc adapts a plain function to Dialer.
type DialerFunc func(config ConnectionConfig) (Connection, error)

func (f DialerFunc) Dial(config ConnectionConfig) (Connection, error) {
	return f(config)
}
