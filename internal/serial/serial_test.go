package serial

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	uart "go.bug.st/serial"
	"go.uber.org/goleak"

	"github.com/nerrad567/icu-core/internal/protocol"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLatestLine_KeepsNewest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	l := NewLatestLine(pr)

	if l.LineAvailable() {
		t.Fatal("line available before any input")
	}
	if _, err := l.ReadLine(); !errors.Is(err, ErrNoLine) {
		t.Fatalf("ReadLine() error = %v, want ErrNoLine", err)
	}

	if _, err := io.WriteString(pw, "one\r\ntwo\nthree\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return l.Total() == 3 })

	got, err := l.ReadLine()
	if err != nil || got != "three" {
		t.Errorf("ReadLine() = %q, %v, want three", got, err)
	}
	if l.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", l.Dropped())
	}
	if l.LineAvailable() {
		t.Error("line still available after read")
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLatestLine_PartialLineNotDelivered(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	l := NewLatestLine(pr)
	defer l.Close()

	go func() { _, _ = io.WriteString(pw, `{"action":"ali`) }()
	time.Sleep(20 * time.Millisecond)
	if l.LineAvailable() {
		t.Error("incomplete line reported available")
	}
}

func TestLatestLine_EOF(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	l := NewLatestLine(pr)
	_, _ = io.WriteString(pw, "last\n")
	_ = pw.Close()

	<-l.Done()
	if !errors.Is(l.Err(), io.EOF) {
		t.Errorf("Err() = %v, want EOF", l.Err())
	}
	if got, _ := l.ReadLine(); got != "last" {
		t.Errorf("ReadLine() = %q, want last", got)
	}
	_ = l.Close()
}

func TestLatestLine_OversizeLineResyncs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	l := NewLatestLine(pr)
	defer l.Close()
	dec := protocol.NewDecoder(l)

	if _, err := io.WriteString(pw, strings.Repeat("x", 5000)+"\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, l.LineAvailable)
	msg := dec.Poll()
	if msg.Kind != protocol.ParseError || len(msg.Payload) != MaxLineLength {
		t.Errorf("oversize line = %v with %d bytes, want PARSE_ERROR with %d", msg.Kind, len(msg.Payload), MaxLineLength)
	}
	if l.Oversized() != 1 {
		t.Errorf("Oversized() = %d, want 1", l.Oversized())
	}

	if _, err := io.WriteString(pw, `{"action":"alive","data":"ok"}`+"\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, l.LineAvailable)
	if msg := dec.Poll(); msg.Kind != protocol.Heartbeat || msg.Payload != "ok" {
		t.Errorf("line after oversize = %+v, want heartbeat ok", msg)
	}
	if l.Err() != nil {
		t.Errorf("reader stopped: %v", l.Err())
	}
}

func TestLatestLine_Framing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	l := NewLatestLine(pr)
	_, _ = io.WriteString(pw, "garbage\r\nunterminated")
	_ = pw.Close()

	<-l.Done()
	if l.Total() != 1 {
		t.Errorf("Total() = %d, want 1 (tail at EOF is not a line)", l.Total())
	}
	if got, _ := l.ReadLine(); got != "garbage\r" {
		t.Errorf("ReadLine() = %q, want carriage return kept", got)
	}
	_ = l.Close()
}

type fakePort struct {
	uart.Port
	r       *io.PipeReader
	written strings.Builder
}

func (f *fakePort) Read(p []byte) (int, error)  { return f.r.Read(p) }
func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakePort) Close() error                { return f.r.Close() }

func swapOpener(t *testing.T, fn func(string, *uart.Mode) (uart.Port, error)) {
	t.Helper()
	prev := opener
	opener = fn
	t.Cleanup(func() { opener = prev })
}

func TestOpen_RetriesUntilPresent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pr, pw := io.Pipe()
	calls := 0
	var gotMode uart.Mode
	swapOpener(t, func(name string, mode *uart.Mode) (uart.Port, error) {
		calls++
		gotMode = *mode
		if calls < 3 {
			return nil, errors.New("no such device")
		}
		return &fakePort{r: pr}, nil
	})

	p, err := Open(context.Background(), Config{
		Port:            "/dev/ttyUSB0",
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("open attempts = %d, want 3", calls)
	}
	if gotMode.BaudRate != 115200 || gotMode.DataBits != 8 || gotMode.Parity != uart.NoParity || gotMode.StopBits != uart.OneStopBit {
		t.Errorf("mode = %+v, want 115200 8N1", gotMode)
	}

	_, _ = io.WriteString(pw, "{\"action\":\"alive\",\"data\":\"x\"}\r\n")
	waitFor(t, p.LineAvailable)
	if p.Name() != "/dev/ttyUSB0" {
		t.Errorf("Name() = %q", p.Name())
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpen_GivesUp(t *testing.T) {
	swapOpener(t, func(string, *uart.Mode) (uart.Port, error) {
		return nil, errors.New("no such device")
	})

	_, err := Open(context.Background(), Config{
		Port:            "/dev/ttyACM9",
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsed:      20 * time.Millisecond,
	}, nil)
	if !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Open() error = %v, want ErrPortUnavailable", err)
	}
}

func TestOpen_ContextCancelled(t *testing.T) {
	swapOpener(t, func(string, *uart.Mode) (uart.Port, error) {
		return nil, errors.New("no such device")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, Config{Port: "/dev/ttyACM9"}, nil)
	if !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Open() error = %v, want ErrPortUnavailable", err)
	}
}

func TestOpen_NoDevice(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, nil); !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Open() error = %v, want ErrPortUnavailable", err)
	}
}

func TestPort_Write(t *testing.T) {
	pr, _ := io.Pipe()
	fp := &fakePort{r: pr}
	swapOpener(t, func(string, *uart.Mode) (uart.Port, error) { return fp, nil })

	p, err := Open(context.Background(), Config{Port: "/dev/ttyACM0"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if fp.written.String() != "hello\n" {
		t.Errorf("written = %q", fp.written.String())
	}
}

// pipeOpener hands out a fresh pipe-backed port on every open.
type pipeOpener struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
}

func (o *pipeOpener) open(string, *uart.Mode) (uart.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pr, pw := io.Pipe()
	o.writers = append(o.writers, pw)
	return &fakePort{r: pr}, nil
}

func (o *pipeOpener) writer(i int) *io.PipeWriter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.writers) {
		return nil
	}
	return o.writers[i]
}

func TestPort_ReopensAfterReaderStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var o pipeOpener
	swapOpener(t, o.open)

	p, err := Open(context.Background(), Config{
		Port:            "/dev/ttyACM0",
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	first := o.writer(0)
	_, _ = io.WriteString(first, "before\n")
	waitFor(t, func() bool { return p.Total() == 1 })
	_ = first.CloseWithError(errors.New("device unplugged"))

	waitFor(t, func() bool { return p.Reopens() == 1 && o.writer(1) != nil })
	_, _ = io.WriteString(o.writer(1), `{"action":"alive","data":"back"}`+"\n")
	waitFor(t, p.LineAvailable)

	if got, _ := p.ReadLine(); got != `{"action":"alive","data":"back"}` {
		t.Errorf("ReadLine() = %q after reopen", got)
	}
	if p.Total() != 2 || p.Dropped() != 1 {
		t.Errorf("Total() = %d, Dropped() = %d, want 2 and 1 across readers", p.Total(), p.Dropped())
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if p.Reopens() != 1 {
		t.Errorf("Reopens() = %d after Close, want 1", p.Reopens())
	}
}

func TestPort_NoReopenAfterCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var o pipeOpener
	swapOpener(t, o.open)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := Open(ctx, Config{Port: "/dev/ttyACM0"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	_ = o.writer(0).CloseWithError(errors.New("gone"))
	<-p.current().Done()

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if p.Reopens() != 0 || o.writer(1) != nil {
		t.Error("port reopened after its context was cancelled")
	}
}
