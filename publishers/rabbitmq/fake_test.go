package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quix-labs/el-amqp-transport/internals/broker"
)

type declaration struct {
	name       string
	kind       string
	durable    bool
	autoDelete bool
	internal   bool
	noWait     bool
}

type publication struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// fakeBroker counts every open and close so tests can assert that no
// resource is leaked.
type fakeBroker struct {
	mu sync.Mutex

	dialErr         error
	channelErr      error
	declareErr      error
	publishErr      error
	channelCloseErr error
	connCloseErr    error

	// confirms makes channels implement broker.ConfirmChannel.
	confirms   bool
	confirmErr error
	nack       bool
	waitErr    error

	connOpens     int
	connCloses    int
	channelOpens  int
	channelCloses int
	dialed        []broker.ConnectionConfig
	declarations  []declaration
	publications  []publication
	confirmCalls  int
}

func (b *fakeBroker) Dial(config broker.ConnectionConfig) (broker.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialed = append(b.dialed, config)
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	b.connOpens++
	return &fakeConnection{broker: b}, nil
}

func (b *fakeBroker) opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connOpens + b.channelOpens
}

func (b *fakeBroker) closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connCloses + b.channelCloses
}

type fakeConnection struct {
	broker *fakeBroker
}

func (c *fakeConnection) Channel() (broker.Channel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.channelErr != nil {
		return nil, c.broker.channelErr
	}
	c.broker.channelOpens++
	if c.broker.confirms {
		return &fakeConfirmChannel{fakeChannel{broker: c.broker}}, nil
	}
	return &fakeChannel{broker: c.broker}, nil
}

func (c *fakeConnection) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.connCloses++
	return c.broker.connCloseErr
}

type fakeChannel struct {
	broker *fakeBroker
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, _ amqp.Table) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.declarations = append(ch.broker.declarations, declaration{name, kind, durable, autoDelete, internal, noWait})
	return ch.broker.declareErr
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if ch.broker.publishErr != nil {
		return ch.broker.publishErr
	}
	ch.broker.publications = append(ch.broker.publications, publication{exchange, key, msg})
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.channelCloses++
	return ch.broker.channelCloseErr
}

type fakeConfirmChannel struct {
	fakeChannel
}

func (ch *fakeConfirmChannel) Confirm(bool) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.confirmCalls++
	return ch.broker.confirmErr
}

func (ch *fakeConfirmChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (broker.Confirmation, error) {
	if err := ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg); err != nil {
		return nil, err
	}
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	return fakeConfirmation{acked: !ch.broker.nack, err: ch.broker.waitErr}, nil
}

type fakeConfirmation struct {
	acked bool
	err   error
}

func (c fakeConfirmation) WaitContext(context.Context) (bool, error) {
	return c.acked, c.err
}
