package subscribers

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/quix-labs/el-amqp-transport/internals/types"
)

// LogOutput receives every subscriber log line.
var LogOutput io.Writer = os.Stdout

type Subscriber struct {
	Name    string
	Channel chan<- types.Event
	Logger  zerolog.Logger
}

// Global method

func (s *Subscriber) InternalInit(eventChannel chan<- types.Event, name string) {
	s.Name = name
	s.Channel = eventChannel
	s.Logger = zerolog.New(LogOutput).
		With().Caller().Stack().Timestamp().
		Str("service", "subscriber").Str("serviceName", name).
		Logger()
}

// DispatchEvent blocks until the event is queued or ctx is done.
func (s *Subscriber) DispatchEvent(ctx context.Context, event types.Event) error {
	select {
	case s.Channel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscriber) InternalTerminate() {}
