package rabbitmq

import (
	"context"
	"fmt"

	"github.com/quix-labs/el-amqp-transport/internals/broker"
	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
	"github.com/quix-labs/el-amqp-transport/internals/utils"
	"github.com/quix-labs/el-amqp-transport/publishers"
)

// Config is the driver section of the configuration file.
type Config struct {
	broker.Settings

	Mode    string `json:"mode"`
	Confirm bool   `json:"confirm"`

	Index string `json:"index"`
	Type  string `json:"type"`
}

// Publisher exposes index, delete and bulk requests over the broker.
type Publisher struct {
	publishers.Publisher
	session  *Session
	defaults types.Options
	dialer   broker.Dialer
}

// New builds a ready publisher. A nil dialer connects to RabbitMQ.
func New(name string, config Config, dialer broker.Dialer) (*Publisher, error) {
	p := &Publisher{dialer: dialer}
	p.InternalInit(name)
	if err := p.open(config); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Init(config map[string]any) error {
	var conf Config
	if err := utils.ParseMap(config, &conf); err != nil {
		return fmt.Errorf("invalid rabbitmq config: %w", err)
	}
	return p.open(conf)
}

func (p *Publisher) open(config Config) error {
	connConfig, err := config.ConnectionConfig()
	if err != nil {
		return err
	}
	mode, err := ParseMode(config.Mode)
	if err != nil {
		return err
	}

	opts := []SessionOption{WithLogger(p.Logger)}
	if config.Confirm {
		opts = append(opts, WithConfirms())
	}
	session, err := NewSession(connConfig, p.dialer, mode, opts...)
	if err != nil {
		return err
	}

	p.session = session
	p.defaults = types.Options{Index: config.Index, Type: config.Type}
	p.Logger.Info().
		Str("broker", connConfig.String()).
		Str("mode", mode.String()).
		Bool("confirm", config.Confirm).
		Msg("Transport session ready")
	return nil
}

func (p *Publisher) Index(ctx context.Context, document any, id string, options types.Options) (*types.PublishResult, error) {
	op, err := types.NewIndexOperation(document, id, options)
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Delete(ctx context.Context, id string, options types.Options) (*types.PublishResult, error) {
	op, err := types.NewDeleteOperation(id, options)
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Search(_ context.Context, _ any) (*types.PublishResult, error) {
	return nil, bulk.Unsupported("search")
}

// Request only accepts the bulk endpoint. The payload is published verbatim
// after newline normalization.
func (p *Publisher) Request(ctx context.Context, path string, method string, payload string) (*types.PublishResult, error) {
	op, err := bulk.ParseRequest(path, method, payload)
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Terminate() error {
	if p.session == nil {
		return nil
	}
	return p.session.Close()
}

func (p *Publisher) send(ctx context.Context, op types.Operation) (*types.PublishResult, error) {
	payload, err := bulk.AssembleBulkPayload(p.defaults, op)
	if err != nil {
		return nil, err
	}
	if p.session == nil {
		return nil, types.ErrSessionClosed
	}

	result, err := p.session.Publish(ctx, payload)
	if err != nil {
		p.Logger.Error().Err(err).Str("operation", string(op.Kind())).Msg("Cannot publish bulk payload")
		return nil, err
	}
	p.Logger.Debug().
		Str("operation", string(op.Kind())).
		Int("bytes", len(payload)).
		Bool("confirmed", result.Confirmed).
		Msg("Bulk payload published")
	return result, nil
}
