package models

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventChunk EventKind = iota
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the canonical representation every provider protocol is
// normalized into. Any number of chunks precede exactly one done or error.
type Event struct {
	Kind     EventKind
	Text     string
	Content  string
	Metadata Metadata
	Err      error
}

// Chunk builds an incremental text event.
func Chunk(text string) Event {
	return Event{Kind: EventChunk, Text: text}
}

// Done builds the successful terminal event.
func Done(content string, meta Metadata) Event {
	return Event{Kind: EventDone, Content: content, Metadata: meta}
}

// Failed builds the failing terminal event.
func Failed(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Message returns the error text of an error event.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
