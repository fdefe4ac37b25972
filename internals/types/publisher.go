package types

import "context"

type AbstractPublisher interface {
	Init(config map[string]any) error
	Terminate() error

	InternalInit(name string)
	InternalTerminate()

	Index(ctx context.Context, document any, id string, options Options) (*PublishResult, error)
	Delete(ctx context.Context, id string, options Options) (*PublishResult, error)
	Search(ctx context.Context, query any) (*PublishResult, error)
	Request(ctx context.Context, path string, method string, payload string) (*PublishResult, error)
}

// PublishResult reports the outcome of a single publish. Confirmed is only
// set when the sink surfaced an explicit acknowledgment.
type PublishResult struct {
	Success   bool `json:"success"`
	Confirmed bool `json:"confirmed"`
}
