package pipeline

import (
	"sync/atomic"

	"github.com/ellentanhsuling/scribe-bot/internal/conversation"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventEntryReady is emitted for every entry appended to the log.
	EventEntryReady EventKind = "entry-ready"
	// EventEscalation is emitted in addition to EventEntryReady for High
	// risk entries.
	EventEscalation EventKind = "escalation"
	// EventSegmentDropped reports a segment lost to a recognition failure.
	EventSegmentDropped EventKind = "segment-dropped"
)

// Event is what the pipeline surfaces to the presentation layer. The
// pipeline never acts on Action itself; it is a caller-defined token such as
// "contact-responder".
type Event struct {
	Kind      EventKind
	SessionID string
	Seq       int // position of Entry in the log, starting at 1
	Entry     conversation.Entry
	Keyword   string // matched risk keyword, escalations only
	Action    string
	Reason    string // why a segment was dropped
}

// Sink receives pipeline events. Publish is called from the single goroutine
// that owns the conversation log, so implementations must return quickly.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// ChannelSink delivers events on a buffered channel without ever blocking the
// pipeline; events that do not fit are counted and discarded.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewChannelSink creates a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, size)}
}

func (s *ChannelSink) Publish(e Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the channel events are delivered on.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Dropped returns how many events did not fit in the buffer.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}
