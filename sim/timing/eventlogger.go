package timing

import (
	"github.com/sirupsen/logrus"

	"github.com/kairos-sim/kairos/sim/hooking"
)

// EventLogger is an hook that prints the event information
type EventLogger struct {
	logger logrus.FieldLogger
	level  logrus.Level
}

// NewEventLogger returns a new EventLogger which will write in to the logger
// at info level.
func NewEventLogger(logger logrus.FieldLogger) *EventLogger {
	h := new(EventLogger)

	h.logger = logger
	h.level = logrus.InfoLevel

	return h
}

// WithLevel sets the level of the event lines.
func (h *EventLogger) WithLevel(level logrus.Level) *EventLogger {
	h.level = level
	return h
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	id, ok := ctx.Item.(EventID)
	if !ok {
		return
	}

	fields := logrus.Fields{
		"time": id.Time().String(),
		"uid":  id.UID(),
	}

	if id.Context() != NoContext {
		fields["context"] = id.Context()
	}

	h.logger.WithFields(fields).Log(h.level, "event")
}
