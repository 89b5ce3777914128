package procmanager

// Publisher delivers session events to interested subscribers. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(topic string, payload []byte)

func (f PublisherFunc) Publish(topic string, payload []byte) {
	f(topic, payload)
}

// EventKind identifies the kind of a session event.
type EventKind string

const (
	EventData  EventKind = "data"
	EventError EventKind = "error"
	EventExit  EventKind = "exit"
)

// DefaultNamespace prefixes session event topics.
const DefaultNamespace = "term"

// Topic returns the event topic for a session, e.g. "term.data.s1".
func Topic(namespace string, kind EventKind, sessionID string) string {
	return namespace + "." + string(kind) + "." + sessionID
}
