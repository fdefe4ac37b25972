package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDialer opens real RabbitMQ connections.
type AMQPDialer struct{}

func (AMQPDialer) Dial(config ConnectionConfig) (Connection, error) {
	conn, err := DialAMQP(config)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

// DialAMQP returns the raw client connection, for callers needing more than
// the publish capabilities (queue consumers).
func DialAMQP(config ConnectionConfig) (*amqp.Connection, error) {
	config = config.WithDefaults()
	amqpConfig := amqp.Config{
		Vhost:     config.VirtualHost,
		Heartbeat: config.Heartbeat,
		Locale:    "en_US",
	}
	if config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(config.ConnectionTimeout)
	}
	return amqp.DialConfig(config.URI(), amqpConfig)
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{Channel: ch}, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

var _ ConfirmChannel = (*amqpChannel)(nil)

type amqpChannel struct {
	*amqp.Channel
}

func (c *amqpChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (Confirmation, error) {
	confirmation, err := c.Channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil || confirmation == nil {
		return nil, err
	}
	return confirmation, nil
}
