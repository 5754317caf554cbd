package serial

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	uart "go.bug.st/serial"
)

// Config describes the UART the perception node is attached to.
type Config struct {
	Port     string
	BaudRate int

	// Reopen controls the retry schedule while the port is absent.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds the first open only; zero retries until ctx is
	// cancelled. Reopening after the reader stops always retries until
	// ctx is cancelled.
	MaxElapsed time.Duration
}

// Logger is the logging surface of the port opener.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Port is an open UART with a LatestLine reader attached. Writes go
// straight to the device.
//
// If the reader stops for any reason other than Close or cancellation of
// the context given to Open, the device is closed and reopened with the
// same backoff schedule and a fresh reader takes its place.
//
// Port implements protocol.LineSource.
type Port struct {
	name   string
	cfg    Config
	mode   *uart.Mode
	logger Logger

	mu     sync.Mutex
	raw    uart.Port
	reader *LatestLine

	// Counters of readers that have been replaced.
	prevDropped   atomic.Uint64
	prevTotal     atomic.Uint64
	prevOversized atomic.Uint64
	reopens       atomic.Uint64

	cancel    context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// opener is swapped in tests.
var opener = func(name string, mode *uart.Mode) (uart.Port, error) {
	return uart.Open(name, mode)
}

// Open opens the UART at cfg.BaudRate 8N1, retrying with exponential
// backoff until it appears, cfg.MaxElapsed runs out or ctx is done.
//
// Parameters:
//   - ctx: Cancels the retry loop and ends reopen supervision
//   - cfg: Device path, baud rate and retry schedule
//   - logger: Receives one warning per failed attempt
//
// Returns:
//   - *Port: Open port with its reader running
//   - error: ErrPortUnavailable wrapping the last open error
func Open(ctx context.Context, cfg Config, logger Logger) (*Port, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no device configured", ErrPortUnavailable)
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	p := &Port{
		name:   cfg.Port,
		cfg:    cfg,
		logger: logger,
		mode: &uart.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   uart.NoParity,
			StopBits: uart.OneStopBit,
		},
		watchDone: make(chan struct{}),
	}

	sp, attempts, err := p.dial(ctx, cfg.MaxElapsed)
	if err != nil {
		return nil, err
	}
	p.info("serial port open", "port", cfg.Port, "baud", cfg.BaudRate, "attempts", attempts)
	p.attach(sp)

	wctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.watch(wctx)
	return p, nil
}

func (p *Port) dial(ctx context.Context, maxElapsed time.Duration) (uart.Port, int, error) {
	b := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		b.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		b.MaxInterval = p.cfg.MaxInterval
	}
	b.MaxElapsedTime = maxElapsed

	var sp uart.Port
	attempt := 0
	op := func() error {
		attempt++
		port, err := opener(p.name, p.mode)
		if err != nil {
			return err
		}
		sp = port
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.warn("serial port unavailable", "port", p.name, "attempt", attempt, "retry_in", next, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, attempt, fmt.Errorf("%w: %s: %w", ErrPortUnavailable, p.name, err)
	}
	return sp, attempt, nil
}

func (p *Port) attach(sp uart.Port) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.reader; old != nil {
		dropped := old.Dropped()
		if old.LineAvailable() {
			dropped++
		}
		p.prevDropped.Add(dropped)
		p.prevTotal.Add(old.Total())
		p.prevOversized.Add(old.Oversized())
	}
	p.raw = sp
	p.reader = NewLatestLine(sp)
}

func (p *Port) current() *LatestLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reader
}

// watch reopens the device whenever its reader stops on its own.
func (p *Port) watch(ctx context.Context) {
	defer close(p.watchDone)
	for {
		r := p.current()
		select {
		case <-ctx.Done():
			return
		case <-r.Done():
		}
		if ctx.Err() != nil {
			return
		}

		p.warn("serial reader stopped, reopening", "port", p.name, "error", r.Err())
		_ = r.Close()

		sp, attempts, err := p.dial(ctx, 0)
		if err != nil {
			return
		}
		p.attach(sp)
		p.reopens.Add(1)
		p.info("serial port reopened", "port", p.name, "attempts", attempts)
	}
}

// LineAvailable reports whether an unread line is buffered.
func (p *Port) LineAvailable() bool { return p.current().LineAvailable() }

// ReadLine returns the newest unread line, or ErrNoLine.
func (p *Port) ReadLine() (string, error) { return p.current().ReadLine() }

// Dropped returns how many lines were overwritten unread since Open.
func (p *Port) Dropped() uint64 { return p.prevDropped.Load() + p.current().Dropped() }

// Total returns how many lines have been received since Open.
func (p *Port) Total() uint64 { return p.prevTotal.Load() + p.current().Total() }

// Oversized returns how many lines were cut at MaxLineLength since Open.
func (p *Port) Oversized() uint64 { return p.prevOversized.Load() + p.current().Oversized() }

// Reopens returns how many times the device has been reopened.
func (p *Port) Reopens() uint64 { return p.reopens.Load() }

// Write sends b to the device.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	raw := p.raw
	p.mu.Unlock()

	n, err := raw.Write(b)
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", p.name, err)
	}
	return n, nil
}

// Name returns the device path.
func (p *Port) Name() string { return p.name }

// Close stops reopen supervision, closes the device and waits for the
// reader to exit.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.watchDone
		p.closeErr = p.current().Close()
	})
	return p.closeErr
}

func (p *Port) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Port) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	ports, err := uart.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}
