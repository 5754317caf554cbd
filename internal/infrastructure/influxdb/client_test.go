package influxdb

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/infrastructure/config"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
)

var at = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func line(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

// fakeServer answers /ping and records line-protocol bodies.
type fakeServer struct {
	*httptest.Server
	mu    sync.Mutex
	lines []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			fs.mu.Lock()
			fs.lines = append(fs.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			fs.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) written() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.lines...)
}

// waitForLines polls because the write API sends batches from its own
// goroutine.
func (fs *fakeServer) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got := fs.written()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{Enabled: true, URL: url, Token: "t", Org: "icu", Bucket: "icu", BatchSize: 10, FlushInterval: 1}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	if _, err := Connect(context.Background(), cfg, "d"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(context.Background(), testConfig(url), "d"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WritesAndFlushes(t *testing.T) {
	srv := newFakeServer(t)
	c, err := Connect(context.Background(), testConfig(srv.URL), "icu-001")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	c.WriteTransition("boot", lifecycle.Scanning, "scan_1", 1234, at)
	c.WritePerception("boot", protocol.Message{Kind: protocol.Heartbeat, Payload: "XIAO is running"}, at)
	c.WriteEnvironment(environment.Reading{TemperatureC: math.NaN(), HumidityPct: math.NaN(), PressureHPa: math.NaN(), At: at})
	c.Flush()

	got := srv.waitForLines(t, 2)
	if len(got) != 2 {
		t.Fatalf("written lines = %q, want 2 (all-NaN reading skipped)", got)
	}
	if !strings.HasPrefix(got[0], MeasurementLifecycle+",") || !strings.HasPrefix(got[1], MeasurementPerception+",") {
		t.Errorf("lines = %q", got)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c.WriteTransition("boot", lifecycle.Detection, "", 0, at)
	c.Flush()
	if len(srv.written()) != 2 {
		t.Error("write after Close reached the server")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}
}

func TestTransitionPoint(t *testing.T) {
	got := line(TransitionPoint("icu-001", "b1", lifecycle.Detection, "detect", 500, at))
	want := "icu_lifecycle,boot_id=b1,device=icu-001,phase=detect,state=DETECTION code=2i,uptime_ms=500i 1792065600000000000\n"
	if got != want {
		t.Errorf("line = %q\nwant   %q", got, want)
	}

	noPhase := line(TransitionPoint("d", "b", lifecycle.WakeUp, "", 0, at))
	if strings.Contains(noPhase, "phase=") {
		t.Errorf("empty phase should not be tagged: %q", noPhase)
	}
}

func TestPerceptionPoint(t *testing.T) {
	if PerceptionPoint("d", "b", protocol.Message{Kind: protocol.None}, at) != nil {
		t.Error("None message should produce no point")
	}

	got := line(PerceptionPoint("d", "b", protocol.Message{Kind: protocol.Detection, Payload: "10,20,30,40"}, at))
	for _, want := range []string{"kind=DETECTION", "center_x=25i", "center_y=40i", "w=30i", "count=1i"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}

	bad := line(PerceptionPoint("d", "b", protocol.Message{Kind: protocol.Detection, Payload: "nope"}, at))
	if strings.Contains(bad, "center_x") {
		t.Errorf("unparseable box should not add geometry: %q", bad)
	}
}

func TestEnvironmentPoint_OmitsNaN(t *testing.T) {
	r := environment.Reading{TemperatureC: 21.5, HumidityPct: math.NaN(), PressureHPa: 1013.25, At: at}
	got := line(EnvironmentPoint("d", r))
	if strings.Contains(got, "humidity_pct") {
		t.Errorf("NaN field written: %q", got)
	}
	if !strings.Contains(got, "temperature_c=21.5") || !strings.Contains(got, "pressure_hpa=1013.25") {
		t.Errorf("line = %q", got)
	}
}
