package logger

import (
	"github.com/harrison/flavorforge/internal/models"
)

// EventSink receives progress events.
type EventSink interface {
	HandleEvent(event models.Event)
}

// MultiSink forwards every event to each sink in order. Nil sinks are skipped.
type MultiSink []EventSink

// NewMultiSink creates a MultiSink from the non-nil sinks.
func NewMultiSink(sinks ...EventSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// HandleEvent implements EventSink.
func (m MultiSink) HandleEvent(event models.Event) {
	for _, s := range m {
		s.HandleEvent(event)
	}
}
