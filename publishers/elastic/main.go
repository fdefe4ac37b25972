package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	elasticsearch8 "github.com/elastic/go-elasticsearch/v8"

	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
	"github.com/quix-labs/el-amqp-transport/internals/utils"
	"github.com/quix-labs/el-amqp-transport/publishers"
)

type Config struct {
	Endpoints []string `json:"endpoints"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Prefix    string   `json:"prefix"`
	Index     string   `json:"index"`
	Type      string   `json:"type"`
}

// Publisher posts bulk payloads straight to the _bulk endpoint. It is the
// relay target for payloads drained from the queue.
type Publisher struct {
	sync.RWMutex
	publishers.Publisher
	client   *elasticsearch8.Client
	Prefix   string
	defaults types.Options

	// transport replaces the HTTP transport, used by tests.
	transport http.RoundTripper
}

type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (p *Publisher) Init(config map[string]any) error {
	var conf Config
	if err := utils.ParseMap(config, &conf); err != nil {
		return fmt.Errorf("invalid elastic config: %w", err)
	}

	esConfig := elasticsearch8.Config{
		Addresses: conf.Endpoints,
		Username:  conf.Username,
		Password:  conf.Password,
		Transport: p.transport,
	}
	es8, err := elasticsearch8.NewClient(esConfig)
	if err != nil {
		return fmt.Errorf("unable to create elasticsearch client: %w", err)
	}
	res, err := es8.Info()
	if err != nil {
		return types.NewTransportError("ping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return types.NewTransportError("ping", errors.New(res.String()))
	}

	p.Logger.Info().Strs("endpoints", conf.Endpoints).Msg("Successfully connected to elasticsearch")
	p.client = es8
	p.Prefix = conf.Prefix
	p.defaults = types.Options{Index: conf.Index, Type: conf.Type}
	return nil
}

func (p *Publisher) Index(ctx context.Context, document any, id string, options types.Options) (*types.PublishResult, error) {
	op, err := types.NewIndexOperation(document, id, p.resolve(options))
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Delete(ctx context.Context, id string, options types.Options) (*types.PublishResult, error) {
	op, err := types.NewDeleteOperation(id, p.resolve(options))
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Search(_ context.Context, _ any) (*types.PublishResult, error) {
	return nil, bulk.Unsupported("search")
}

func (p *Publisher) Request(ctx context.Context, path string, method string, payload string) (*types.PublishResult, error) {
	op, err := bulk.ParseRequest(path, method, payload)
	if err != nil {
		return nil, err
	}
	return p.send(ctx, op)
}

func (p *Publisher) Terminate() error { return nil }

func (p *Publisher) resolve(options types.Options) types.Options {
	options = options.Merge(p.defaults)
	if options.Index != "" {
		options.Index = p.Prefix + options.Index
	}
	return options
}

func (p *Publisher) send(ctx context.Context, op types.Operation) (*types.PublishResult, error) {
	payload, err := bulk.AssembleBulkPayload(types.Options{}, op)
	if err != nil {
		return nil, err
	}
	result, err := p.sendBulk(ctx, payload)
	if err != nil {
		p.Logger.Error().Err(err).Str("operation", string(op.Kind())).Msg("Error sending bulk request")
		return nil, err
	}
	return result, nil
}

func (p *Publisher) sendBulk(ctx context.Context, payload string) (*types.PublishResult, error) {
	p.Lock()
	defer p.Unlock()

	if p.client == nil {
		return nil, types.ErrSessionClosed
	}
	res, err := p.client.Bulk(strings.NewReader(payload), p.client.Bulk.WithContext(ctx))
	if err != nil {
		return nil, types.NewTransportError("bulk", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, types.NewTransportError("bulk", fmt.Errorf("bulk request returned error: %s", res.String()))
	}

	var response bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, types.NewTransportError("bulk", fmt.Errorf("failed to parse bulk response: %w", err))
	}
	if response.Errors {
		return nil, types.NewTransportError("bulk", itemsError(response))
	}

	p.Logger.Debug().Int("took", response.Took).Int("items", len(response.Items)).Msg("Bulk request accepted")
	return &types.PublishResult{Success: true, Confirmed: true}, nil
}

func itemsError(response bulkResponse) error {
	var reasons []string
	for _, item := range response.Items {
		for action, status := range item {
			if status.Error == nil {
				continue
			}
			reasons = append(reasons, fmt.Sprintf("%s %s: %s (%s)", action, status.ID, status.Error.Reason, status.Error.Type))
		}
	}
	return fmt.Errorf("%d bulk item(s) failed: %s", len(reasons), strings.Join(reasons, "; "))
}
