package types

import "context"

type AbstractSubscriber interface {
	Init(config map[string]any) error

	Listen(ctx context.Context) error
	Terminate() error

	InternalInit(eventChannel chan<- Event, name string)
	InternalTerminate()
	DispatchEvent(ctx context.Context, event Event) error
}
