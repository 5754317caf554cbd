package protocol

import (
	"encoding/json"
	"strings"
)

// LineSource yields completed lines without blocking.
type LineSource interface {
	// LineAvailable reports whether a completed line is buffered.
	LineAvailable() bool
	// ReadLine returns the buffered line without its terminator.
	ReadLine() (string, error)
}

// Decode turns one line into a Message.
//
// The line must hold a JSON object. Only the first JSON value is read, so
// trailing bytes after the object are ignored. A string "action" selects
// the kind; anything else there is an unknown action. A non-string "data"
// becomes an empty payload. Anything that is not an object is a parse
// error carrying the raw line, including any '\r' left by CRLF framing.
func Decode(line string) Message {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(strings.NewReader(line)).Decode(&doc); err != nil || doc == nil {
		return Message{Kind: ParseError, Payload: line}
	}

	action, _ := stringField(doc, "action")
	data, _ := stringField(doc, "data")

	return Message{Kind: kindForAction(action), Payload: data}
}

func stringField(doc map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := doc[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Decoder polls a LineSource and decodes what it finds.
type Decoder struct {
	src LineSource
}

// NewDecoder returns a Decoder reading from src.
func NewDecoder(src LineSource) *Decoder {
	return &Decoder{src: src}
}

// Poll returns the decoded most recent line, or a None message when
// nothing is buffered. It never blocks.
func (d *Decoder) Poll() Message {
	if d.src == nil || !d.src.LineAvailable() {
		return Message{Kind: None}
	}
	line, err := d.src.ReadLine()
	if err != nil {
		return Message{Kind: None}
	}
	return Decode(line)
}
