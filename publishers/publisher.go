package publishers

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogOutput receives every publisher log line.
var LogOutput io.Writer = os.Stdout

type Publisher struct {
	Name   string
	Logger zerolog.Logger
}

// Global method

func (p *Publisher) InternalInit(name string) {
	p.Name = name
	p.Logger = NewLogger(name)
}
func (p *Publisher) InternalTerminate() {}

func NewLogger(name string) zerolog.Logger {
	return zerolog.New(LogOutput).
		With().Caller().Stack().Timestamp().
		Str("service", "publisher").Str("serviceName", name).
		Logger()
}
