// icu-perception-sim stands in for the camera node. It writes the same
// JSON line protocol the firmware does: periodic heartbeats, synthetic face
// detections and, optionally, malformed lines to exercise the decoder.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/icu-core/internal/infrastructure/config"
	"github.com/nerrad567/icu-core/internal/infrastructure/logging"
	"github.com/nerrad567/icu-core/internal/protocol"
	"github.com/nerrad567/icu-core/internal/serial"
	"github.com/nerrad567/icu-core/internal/timing"
)

var version = "dev"

// Camera frame the synthetic boxes are placed in.
const (
	frameWidth  = 240
	frameHeight = 240
	minBox      = 20
	maxBox      = 120
)

// heartbeatPoll is how often the heartbeat timer is checked.
const heartbeatPoll = 10 * time.Millisecond

// listPorts is swapped in tests.
var listPorts = serial.ListPorts

type options struct {
	port         string
	baud         int
	stdout       bool
	heartbeat    time.Duration
	detectEvery  time.Duration
	garbageEvery time.Duration
	seed         uint64
	logLevel     string
	list         bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "icu-perception-sim",
		Short: "Emit perception-node protocol lines for the ICU controller",
		Example: strings.TrimSpace(`
  icu-perception-sim --stdout --detect-every 2s
  icu-perception-sim --port /dev/pts/4 --heartbeat 5s --garbage-every 30s`),
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.list {
				return printPorts(cmd.OutOrStdout())
			}
			if opts.stdout == (opts.port != "") {
				return fmt.Errorf("exactly one of --port or --stdout is required")
			}
			if opts.heartbeat < time.Millisecond {
				return fmt.Errorf("--heartbeat must be at least 1ms, got %s", opts.heartbeat)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logging.New(config.LoggingConfig{Level: opts.logLevel, Format: "text", Output: "stderr"}, "", version).
				Component("perception-sim")

			var w io.Writer = cmd.OutOrStdout()
			if opts.port != "" {
				p, err := serial.Open(ctx, serial.Config{Port: opts.port, BaudRate: opts.baud, MaxElapsed: 30 * time.Second}, log)
				if err != nil {
					return err
				}
				defer p.Close()
				w = p
			}
			return emit(ctx, protocol.NewSender(w), opts, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.port, "port", "", "serial device to write to")
	f.IntVar(&opts.baud, "baud", 115200, "serial baud rate")
	f.BoolVar(&opts.stdout, "stdout", false, "write lines to stdout instead of a serial port")
	f.DurationVar(&opts.heartbeat, "heartbeat", 30*time.Second, "heartbeat interval")
	f.DurationVar(&opts.detectEvery, "detect-every", 3*time.Second, "detection interval (0 disables)")
	f.DurationVar(&opts.garbageEvery, "garbage-every", 0, "malformed line interval (0 disables)")
	f.Uint64Var(&opts.seed, "seed", 1, "random seed for box placement")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&opts.list, "list", false, "list serial devices and exit")
	return cmd
}

// garbageLines are sent in rotation by --garbage-every.
var garbageLines = []string{
	"not json at all",
	`{"action":"wave","data":"hello"}`,
	`{"action":"detection","data":42}`,
	`["detection","1,2,3,4"]`,
}

// emit writes lines until ctx is cancelled. A heartbeat is sent first so
// the controller sees the link immediately.
func emit(ctx context.Context, s *protocol.Sender, opts options, log *logging.Logger) error {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	if err := s.Heartbeat(); err != nil {
		return err
	}

	clock := timing.NewSystemClock()
	hb := protocol.NewHeartbeatTimer(clock.Now(), timing.Duration(opts.heartbeat))
	poll := time.NewTicker(heartbeatPoll)
	defer poll.Stop()
	detect := optionalTicker(opts.detectEvery)
	defer detect.stop()
	garbage := optionalTicker(opts.garbageEvery)
	defer garbage.stop()

	sent, g := 0, 0
	for {
		var err error
		select {
		case <-ctx.Done():
			log.Info("stopping", "detections", sent)
			return nil
		case <-poll.C:
			if hb.Due(clock.Now()) {
				err = s.Heartbeat()
			}
		case <-detect.c:
			box := randomBox(rng)
			err = s.Detection(box)
			sent++
			log.Debug("detection sent", "box", box.String())
		case <-garbage.c:
			err = s.Raw(garbageLines[g%len(garbageLines)])
			g++
		}
		if err != nil {
			return err
		}
	}
}

func printPorts(w io.Writer) error {
	ports, err := listPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err = fmt.Fprintln(w, "no serial ports found")
		return err
	}
	for _, p := range ports {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

func randomBox(rng *rand.Rand) protocol.BoundingBox {
	w := minBox + rng.IntN(maxBox-minBox+1)
	h := minBox + rng.IntN(maxBox-minBox+1)
	x := rng.IntN(frameWidth - w + 1)
	y := rng.IntN(frameHeight - h + 1)
	return protocol.BoundingBox{X: x, Y: y, W: w, H: h}
}

// ticker is a time.Ticker that never fires when its interval is zero.
type ticker struct {
	t *time.Ticker
	c <-chan time.Time
}

func optionalTicker(d time.Duration) ticker {
	if d <= 0 {
		return ticker{}
	}
	t := time.NewTicker(d)
	return ticker{t: t, c: t.C}
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
