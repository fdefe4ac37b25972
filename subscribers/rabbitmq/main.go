// Package rabbitmq drains bulk payloads from a queue bound to the
// elasticsearch exchange and relays them to the configured publishers.
//
// A delivery whose relay fails is nacked without requeue unless
// requeue_on_failure is set. Without a dead-letter exchange on the queue such
// payloads are lost.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quix-labs/el-amqp-transport/internals/broker"
	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
	"github.com/quix-labs/el-amqp-transport/internals/utils"
	"github.com/quix-labs/el-amqp-transport/subscribers"
)

const (
	DefaultQueue    = "elasticsearch"
	DefaultPrefetch = 10
	ConsumerTag     = "el-amqp-relay"
)

type Config struct {
	broker.Settings

	Queue            string `json:"queue"`
	Prefetch         int    `json:"prefetch"`
	RequeueOnFailure bool   `json:"requeue_on_failure"`
}

type consumeChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Subscriber drains bulk payloads published on the elasticsearch exchange.
// Each delivery is acked once its payload has been published downstream and
// nacked when that publish fails.
type Subscriber struct {
	subscribers.Subscriber
	config  Config
	conn    *amqp.Connection
	channel consumeChannel
}

func (s *Subscriber) Init(config map[string]any) error {
	if err := utils.ParseMap(config, &s.config); err != nil {
		return fmt.Errorf("invalid amqp config: %w", err)
	}
	if s.config.Queue == "" {
		s.config.Queue = DefaultQueue
	}
	if s.config.Prefetch == 0 {
		s.config.Prefetch = DefaultPrefetch
	}
	connConfig, err := s.config.ConnectionConfig()
	if err != nil {
		return err
	}

	conn, err := broker.DialAMQP(connConfig)
	if err != nil {
		return types.NewTransportError("connect", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return types.NewTransportError("open channel", err)
	}
	s.conn = conn
	s.channel = channel

	if err := s.setup(); err != nil {
		return err
	}
	s.Logger.Info().Str("broker", connConfig.String()).Str("queue", s.config.Queue).Msg("Successfully connected to rabbitmq")
	return nil
}

func (s *Subscriber) setup() error {
	if err := s.channel.ExchangeDeclare(bulk.Exchange, bulk.ExchangeKind, true, false, false, false, nil); err != nil {
		return types.NewTransportError("declare exchange", err)
	}
	if _, err := s.channel.QueueDeclare(s.config.Queue, true, false, false, false, nil); err != nil {
		return types.NewTransportError("declare queue", err)
	}
	if err := s.channel.QueueBind(s.config.Queue, bulk.RoutingKey, bulk.Exchange, false, nil); err != nil {
		return types.NewTransportError("bind queue", err)
	}
	if err := s.channel.Qos(s.config.Prefetch, 0, false); err != nil {
		return types.NewTransportError("qos", err)
	}
	return nil
}

func (s *Subscriber) Listen(ctx context.Context) error {
	deliveries, err := s.channel.Consume(s.config.Queue, ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return types.NewTransportError("consume", err)
	}
	return s.consume(ctx, deliveries)
}

func (s *Subscriber) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return types.NewTransportError("consume", errors.New("delivery channel closed"))
			}
			if len(delivery.Body) == 0 {
				s.Logger.Warn().Uint64("tag", delivery.DeliveryTag).Msg("Dropping empty delivery")
				_ = delivery.Nack(false, false)
				continue
			}
			event := types.BulkEvent{
				Subscriber: s.Name,
				Payload:    string(delivery.Body),
				Done:       s.acknowledge(delivery),
			}
			if err := s.DispatchEvent(ctx, event); err != nil {
				_ = delivery.Nack(false, true)
				return nil
			}
		}
	}
}

func (s *Subscriber) acknowledge(delivery amqp.Delivery) func(err error) {
	return func(err error) {
		if err == nil {
			if ackErr := delivery.Ack(false); ackErr != nil {
				s.Logger.Error().Err(ackErr).Uint64("tag", delivery.DeliveryTag).Msg("Cannot ack delivery")
			}
			return
		}
		requeue := s.config.RequeueOnFailure
		if requeue {
			s.Logger.Error().Err(err).Uint64("tag", delivery.DeliveryTag).Msg("Bulk relay failed, requeueing delivery")
		} else {
			s.Logger.Error().Err(err).Uint64("tag", delivery.DeliveryTag).Msg("Bulk relay failed, dropping delivery")
		}
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			s.Logger.Error().Err(nackErr).Uint64("tag", delivery.DeliveryTag).Msg("Cannot nack delivery")
		}
	}
}

func (s *Subscriber) Terminate() error {
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
