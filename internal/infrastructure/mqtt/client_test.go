package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/icu-core/internal/infrastructure/config"
)

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                 { return t.err }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho implements the slice of pahomqtt.Client the wrapper uses.
type fakePaho struct {
	pahomqtt.Client
	opts       *pahomqtt.ClientOptions
	connectErr error
	publishErr error

	mu          sync.Mutex
	up          bool
	published   []published
	disconnects int
}

func (f *fakePaho) Connect() pahomqtt.Token {
	if f.connectErr != nil {
		return doneToken{err: f.connectErr}
	}
	f.mu.Lock()
	f.up = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return doneToken{}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: f.publishErr}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = false
	f.disconnects++
}

func (f *fakePaho) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:      config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "icu-test"},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
		TopicPrefix: "icu/lab",
	}
}

func connectFake(t *testing.T, fake *fakePaho) (*Client, error) {
	t.Helper()
	orig := newPahoClient
	t.Cleanup(func() { newPahoClient = orig })
	newPahoClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.opts = o
		return fake
	}
	return Connect(testConfig(), "icu-007", nil)
}

func TestConnect_PublishesOnlineAndRegistersWill(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	p := fake.last()
	if p.topic != "icu/lab/system/status" || !p.retained {
		t.Errorf("online status published as %+v", p)
	}
	var status StatusMessage
	if err := json.Unmarshal(p.payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != StatusOnline || status.DeviceID != "icu-007" || status.ClientID != "icu-test" {
		t.Errorf("status = %+v", status)
	}

	if fake.opts.WillTopic != "icu/lab/system/status" || !fake.opts.WillRetained {
		t.Errorf("will = %q retained=%v", fake.opts.WillTopic, fake.opts.WillRetained)
	}
	if !strings.Contains(string(fake.opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("will payload = %s", fake.opts.WillPayload)
	}
}

func TestConnect_Failure(t *testing.T) {
	_, err := connectFake(t, &fakePaho{connectErr: errors.New("refused")})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized", "t", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"ok", "t", []byte("x"), 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_BrokerError(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatal(err)
	}
	fake.publishErr = errors.New("nack")
	if err := c.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.PublishJSON(c.Topics().Lifecycle(), map[string]string{"state": "SCANNING"}, true); err != nil {
		t.Fatal(err)
	}
	p := fake.last()
	if p.topic != "icu/lab/state/lifecycle" || p.qos != 1 || !p.retained || string(p.payload) != `{"state":"SCANNING"}` {
		t.Errorf("published %+v", p)
	}

	if err := c.PublishJSON("t", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(unmarshalable) error = %v", err)
	}
}

func TestDisconnectedClient(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatal(err)
	}
	fake.opts.OnConnectionLost(fake, errors.New("network down"))

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if err := c.Publish("t", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	c, err := connectFake(t, &fakePaho{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestClose_PublishesGracefulOffline(t *testing.T) {
	fake := &fakePaho{}
	c, err := connectFake(t, fake)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(fake.last().payload), "graceful_shutdown") {
		t.Errorf("last payload = %s", fake.last().payload)
	}
	if fake.disconnects != 1 || c.IsConnected() {
		t.Errorf("disconnects=%d connected=%v", fake.disconnects, c.IsConnected())
	}

	var nilClient Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "u", Password: "p"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://localhost:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "u" || opts.TLSConfig == nil || !opts.AutoReconnect {
		t.Errorf("options = user %q tls %v reconnect %v", opts.Username, opts.TLSConfig != nil, opts.AutoReconnect)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{NewTopics("").Lifecycle(), "icu/state/lifecycle"},
		{NewTopics("/icu/rig-2/").SystemStatus(), "icu/rig-2/system/status"},
		{NewTopics("icu").Perception("PARSE_ERROR"), "icu/event/perception/parse_error"},
		{NewTopics("icu").AllPerception(), "icu/event/perception/+"},
		{NewTopics("icu").Environment(), "icu/telemetry/environment"},
		{NewTopics("icu").StartupFailure(), "icu/event/startup/failure"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}
