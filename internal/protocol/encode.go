package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Default payloads sent by the perception node.
const (
	HeartbeatPayload     = "XIAO is running"
	CameraFailurePayload = "Camera init failed"
)

type envelope struct {
	Action string `json:"action"`
	Data   string `json:"data"`
}

// Encode renders one protocol line terminated by CRLF, the way the
// perception node's serial println frames it.
func Encode(action, data string) ([]byte, error) {
	b, err := json.Marshal(envelope{Action: action, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", action, err)
	}
	return append(b, '\r', '\n'), nil
}

// Sender writes protocol lines to w. It is safe for concurrent use.
type Sender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSender returns a Sender writing to w.
func NewSender(w io.Writer) *Sender {
	return &Sender{w: w}
}

// Send writes one line.
func (s *Sender) Send(action, data string) error {
	b, err := Encode(action, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("writing %s message: %w", action, err)
	}
	return nil
}

// Heartbeat sends the liveness message.
func (s *Sender) Heartbeat() error {
	return s.Send(ActionAlive, HeartbeatPayload)
}

// Detection sends a face bounding box.
func (s *Sender) Detection(box BoundingBox) error {
	return s.Send(ActionDetection, box.String())
}

// Error reports a perception-side fault.
func (s *Sender) Error(text string) error {
	return s.Send(ActionError, text)
}

// Raw writes line as-is with the CRLF terminator. The simulator uses it to
// send malformed input.
func (s *Sender) Raw(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line+"\r\n"); err != nil {
		return fmt.Errorf("writing raw line: %w", err)
	}
	return nil
}
