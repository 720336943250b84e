package timing

import (
	"github.com/sirupsen/logrus"

	"github.com/kairos-sim/kairos/sim/queue"
)

// SerialEngineBuilder can build serial engines.
type SerialEngineBuilder struct {
	backend queue.Kind
	logger  logrus.FieldLogger
}

// MakeSerialEngineBuilder creates a SerialEngineBuilder with default
// parameters.
func MakeSerialEngineBuilder() SerialEngineBuilder {
	return SerialEngineBuilder{
		backend: queue.KindHeap,
		logger:  logrus.StandardLogger(),
	}
}

// WithBackend sets the kind of queue that orders pending events.
func (b SerialEngineBuilder) WithBackend(kind queue.Kind) SerialEngineBuilder {
	b.backend = kind
	return b
}

// WithLogger sets the logger that receives engine life-cycle messages.
func (b SerialEngineBuilder) WithLogger(
	logger logrus.FieldLogger,
) SerialEngineBuilder {
	b.logger = logger
	return b
}

// Build creates a new SerialEngine.
func (b SerialEngineBuilder) Build() *SerialEngine {
	e := &SerialEngine{
		backend:        b.backend,
		queue:          queue.New(b.backend),
		currentContext: NoContext,
		logger:         b.logger,
	}

	return e
}
