package internals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
	"github.com/quix-labs/el-amqp-transport/internals/utils"
	"github.com/quix-labs/el-amqp-transport/publishers"
	"github.com/quix-labs/el-amqp-transport/publishers/elastic"
	"github.com/quix-labs/el-amqp-transport/publishers/rabbitmq"
	"github.com/quix-labs/el-amqp-transport/subscribers"
	"github.com/quix-labs/el-amqp-transport/subscribers/postgresql"
	amqpsubscriber "github.com/quix-labs/el-amqp-transport/subscribers/rabbitmq"
)

var logOutput io.Writer = os.Stdout

// SetLogOutput sends the bridge, publisher and subscriber loggers created
// afterwards to w.
func SetLogOutput(w io.Writer) {
	logOutput = w
	publishers.LogOutput = w
	subscribers.LogOutput = w
}

var publisherDrivers = map[string]func() types.AbstractPublisher{
	"rabbitmq": func() types.AbstractPublisher { return &rabbitmq.Publisher{} },
	"elastic":  func() types.AbstractPublisher { return &elastic.Publisher{} },
}

var subscriberDrivers = map[string]func() types.AbstractSubscriber{
	"pg-notify": func() types.AbstractSubscriber { return &postgresql.Subscriber{} },
	"amqp":      func() types.AbstractSubscriber { return &amqpsubscriber.Subscriber{} },
}

func RegisterPublisherDriver(driver string, factory func() types.AbstractPublisher) {
	publisherDrivers[driver] = factory
}

func RegisterSubscriberDriver(driver string, factory func() types.AbstractSubscriber) {
	subscriberDrivers[driver] = factory
}

// Bridge routes events from the configured subscribers to their publishers.
type Bridge struct {
	config       *Config
	subscribers  map[string]types.AbstractSubscriber
	publishers   map[string]types.AbstractPublisher
	routes       map[string][]string
	eventChannel chan types.Event
	Logger       zerolog.Logger
}

func NewBridge() *Bridge {
	return &Bridge{
		Logger: zerolog.New(logOutput).With().Caller().Stack().Timestamp().Str("service", "bridge").Logger(),
	}
}

// Init only sets up publishers, restricted to names when given. Subscribers
// are loaded by InitSubscribers so one-shot commands never connect to event
// sources.
func (b *Bridge) Init(config *Config, names ...string) error {
	b.config = config
	b.eventChannel = make(chan types.Event, 100)
	if err := b.loadPublishers(names...); err != nil {
		return err
	}
	return b.initPublishers()
}

func (b *Bridge) InitSubscribers() error {
	if err := b.loadSubscribers(); err != nil {
		return err
	}
	return b.initSubscribers()
}

// Start runs every subscriber and the dispatch loop until ctx is done or a
// subscriber fails.
func (b *Bridge) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for name, subscriber := range b.subscribers {
		name, subscriber := name, subscriber
		group.Go(func() error {
			if err := subscriber.Listen(ctx); err != nil {
				return fmt.Errorf("subscriber %s: %w", name, err)
			}
			b.Logger.Info().Str("subscriber", name).Msg("Subscriber stopped")
			return nil
		})
	}
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event := <-b.eventChannel:
				_ = b.Dispatch(ctx, event)
			}
		}
	})
	return group.Wait()
}

// Dispatch publishes one event to every publisher routed from its source.
// Failures are logged and returned, never retried.
func (b *Bridge) Dispatch(ctx context.Context, event types.Event) error {
	var errs []error
	for _, name := range b.routes[event.Source()] {
		publisher, err := b.GetPublisher(name)
		if err == nil {
			err = b.publish(ctx, publisher, event)
		}
		if err != nil {
			b.Logger.Error().Err(err).Str("subscriber", event.Source()).Str("publisher", name).Msg("Cannot publish event")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	err := errors.Join(errs...)
	if bulkEvent, ok := event.(types.BulkEvent); ok {
		bulkEvent.Complete(err)
	}
	return err
}

func (b *Bridge) publish(ctx context.Context, publisher types.AbstractPublisher, event types.Event) error {
	var err error
	switch e := event.(type) {
	case types.IndexEvent:
		_, err = publisher.Index(ctx, e.Document, e.Reference, e.Options)
	case types.DeleteEvent:
		_, err = publisher.Delete(ctx, e.Reference, e.Options)
	case types.BulkEvent:
		_, err = publisher.Request(ctx, bulk.BulkPath, http.MethodPost, e.Payload)
	default:
		err = fmt.Errorf("unable to publish event %T", event)
	}
	return err
}

func (b *Bridge) Terminate() {
	for name, subscriber := range b.subscribers {
		if err := subscriber.Terminate(); err != nil {
			b.Logger.Warn().Err(err).Str("subscriber", name).Msg("Cannot terminate subscriber")
		}
		subscriber.InternalTerminate()
	}
	for name, publisher := range b.publishers {
		if err := publisher.Terminate(); err != nil {
			b.Logger.Warn().Err(err).Str("publisher", name).Msg("Cannot terminate publisher")
		}
		publisher.InternalTerminate()
	}
}

func (b *Bridge) GetSubscribers() map[string]types.AbstractSubscriber {
	return b.subscribers
}

func (b *Bridge) GetPublishers() map[string]types.AbstractPublisher {
	return b.publishers
}

func (b *Bridge) GetPublisher(name string) (types.AbstractPublisher, error) {
	publisher, ok := b.publishers[name]
	if !ok {
		return nil, fmt.Errorf("invalid publisher name: %s", name)
	}
	return publisher, nil
}

// -----------------INTERNALS----------------------------------------------

func (b *Bridge) loadSubscribers() error {
	b.subscribers = make(map[string]types.AbstractSubscriber)
	b.routes = make(map[string][]string)
	for name, config := range b.config.In {
		factory, ok := subscriberDrivers[fmt.Sprint(config["driver"])]
		if !ok {
			return fmt.Errorf("invalid In Driver: %s", config["driver"])
		}
		b.subscribers[name] = factory()

		outs := b.config.DefaultOut
		if _, ok := config["out"]; ok {
			if err := utils.ParseMapKey(config, "out", &outs); err != nil {
				return fmt.Errorf("in %s: %w", name, err)
			}
		}
		for _, out := range outs {
			if _, err := b.GetPublisher(out); err != nil {
				return fmt.Errorf("in %s: %w", name, err)
			}
		}
		b.routes[name] = outs
	}
	return nil
}

func (b *Bridge) loadPublishers(names ...string) error {
	b.publishers = make(map[string]types.AbstractPublisher)
	for name, config := range b.config.Out {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		factory, ok := publisherDrivers[fmt.Sprint(config["driver"])]
		if !ok {
			return fmt.Errorf("invalid Out Driver: %s", config["driver"])
		}
		b.publishers[name] = factory()
	}
	return nil
}

func (b *Bridge) initSubscribers() error {
	for _, name := range sortedKeys(b.subscribers) {
		subscriber := b.subscribers[name]
		subscriber.InternalInit(b.eventChannel, name)
		if err := subscriber.Init(utils.WithoutKeys(b.config.In[name], "driver", "out")); err != nil {
			return fmt.Errorf("cannot init subscriber %s: %w", name, err)
		}
	}
	return nil
}

func (b *Bridge) initPublishers() error {
	for _, name := range sortedKeys(b.publishers) {
		publisher := b.publishers[name]
		publisher.InternalInit(name)
		if err := publisher.Init(utils.WithoutKeys(b.config.Out[name], "driver")); err != nil {
			return fmt.Errorf("cannot init publisher %s: %w", name, err)
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
