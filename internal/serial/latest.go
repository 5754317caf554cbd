package serial

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// MaxLineLength bounds a single protocol line. A line that reaches this
// many bytes is cut there and the rest is discarded up to the next newline.
const MaxLineLength = 4096

// LatestLine reads newline-terminated lines from r in the background and
// keeps only the most recent completed one. A line that is overwritten
// before it is read counts as dropped.
//
// Only the '\n' terminator is removed; any '\r' before it is left in the
// line. Bytes after the last newline at end of input are not a line and
// are discarded.
//
// It implements protocol.LineSource.
type LatestLine struct {
	r io.Reader

	mu      sync.Mutex
	line    string
	pending bool
	err     error

	dropped   atomic.Uint64
	total     atomic.Uint64
	oversized atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewLatestLine starts reading r. Call Close to stop the reader; when r is
// an io.Closer it is closed to unblock a pending read.
func NewLatestLine(r io.Reader) *LatestLine {
	l := &LatestLine{r: r, done: make(chan struct{})}
	go l.run()
	return l
}

func (l *LatestLine) run() {
	defer close(l.done)

	br := bufio.NewReaderSize(l.r, MaxLineLength)
	var err error
	for err == nil {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		switch {
		case err == nil:
			l.publish(string(chunk[:len(chunk)-1]))
		case errors.Is(err, bufio.ErrBufferFull):
			head := string(chunk)
			if err = skipLine(br); err == nil {
				l.oversized.Add(1)
				l.publish(head)
			}
		}
	}

	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// skipLine consumes input up to and including the next newline.
func skipLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func (l *LatestLine) publish(line string) {
	l.total.Add(1)
	l.mu.Lock()
	if l.pending {
		l.dropped.Add(1)
	}
	l.line = line
	l.pending = true
	l.mu.Unlock()
}

// LineAvailable reports whether an unread line is buffered.
func (l *LatestLine) LineAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// ReadLine returns the buffered line and marks it read. It returns
// ErrNoLine when nothing is pending.
func (l *LatestLine) ReadLine() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		return "", ErrNoLine
	}
	l.pending = false
	return l.line, nil
}

// Dropped returns how many lines were overwritten unread.
func (l *LatestLine) Dropped() uint64 { return l.dropped.Load() }

// Total returns how many lines have been received.
func (l *LatestLine) Total() uint64 { return l.total.Load() }

// Oversized returns how many lines were cut at MaxLineLength.
func (l *LatestLine) Oversized() uint64 { return l.oversized.Load() }

// Err returns why the reader stopped, or nil while it is running.
// A clean end of input is reported as io.EOF.
func (l *LatestLine) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the reader goroutine exits.
func (l *LatestLine) Done() <-chan struct{} { return l.done }

// Close stops the reader and waits for it to exit.
func (l *LatestLine) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if c, ok := l.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	<-l.done
	if errors.Is(err, io.ErrClosedPipe) {
		err = nil
	}
	return err
}
