package protocol

import "fmt"

// EventKind classifies one decoded line from the perception node.
type EventKind int

const (
	// None means no complete line was buffered at poll time.
	None EventKind = iota
	Detection
	Heartbeat
	Error
	ParseError
	UnknownAction
)

var kindNames = [...]string{
	None:          "NONE",
	Detection:     "DETECTION",
	Heartbeat:     "HEARTBEAT",
	Error:         "ERROR",
	ParseError:    "PARSE_ERROR",
	UnknownAction: "UNKNOWN_ACTION",
}

// Kinds returns every event kind in declaration order.
func Kinds() []EventKind {
	return []EventKind{None, Detection, Heartbeat, Error, ParseError, UnknownAction}
}

func (k EventKind) String() string {
	if k >= None && k <= UnknownAction {
		return kindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Wire action names.
const (
	ActionDetection = "detection"
	ActionAlive     = "alive"
	ActionError     = "error"
)

// Message is the result of one poll.
type Message struct {
	Kind    EventKind `json:"kind"`
	Payload string    `json:"payload"`
}

// Empty reports whether the poll found nothing to decode.
func (m Message) Empty() bool {
	return m.Kind == None
}

func kindForAction(action string) EventKind {
	switch action {
	case ActionDetection:
		return Detection
	case ActionAlive:
		return Heartbeat
	case ActionError:
		return Error
	default:
		return UnknownAction
	}
}
