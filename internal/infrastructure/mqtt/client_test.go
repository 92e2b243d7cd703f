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

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graynotify-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// fakeToken completes immediately with err.
type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls made through the pahomqtt.Client interface.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	subscribeErr error
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: map[string]pahomqtt.MessageHandler{}}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool  { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return fakeToken{} }
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	f.published = append(f.published, published{topic, qos, retained, body})
	return fakeToken{err: f.publishErr}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr == nil {
		f.handlers[topic] = cb
	}
	return fakeToken{err: f.subscribeErr}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return fakeToken{}
}
func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token     { return fakeToken{} }
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[topic]
	f.mu.Unlock()
	cb(f, &fakeMessage{topic: topic, payload: payload})
}

func (f *fakePaho) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// connectedClient returns a Client wired to a fake paho client.
func connectedClient() (*Client, *fakePaho) {
	fake := newFakePaho()
	c := newClient(testConfig())
	c.paho = fake
	c.connected = true
	return c, fake
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+msg)
}
func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{Topics{}.SourcesAll(), "graynotify/sources/all"},
		{Topics{}.SourcesEnabled(), "graynotify/sources/enabled"},
		{Topics{}.SyncReport(), "graynotify/sources/sync"},
		{Topics{}.CommandSync(), "graynotify/command/sync"},
		{Topics{}.CommandToggle(), "graynotify/command/toggle"},
		{Topics{}.CommandSetEnabled(), "graynotify/command/enabled"},
		{Topics{}.AllCommands(), "graynotify/command/#"},
		{Topics{}.SystemStatus(), "graynotify/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "notify"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graynotify-test" || opts.Username != "notify" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("auto-reconnect and clean session should be enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != (Topics{}).SystemStatus() || !opts.WillRetained {
		t.Errorf("LWT = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != "unexpected_disconnect" {
		t.Errorf("will = %+v", will)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config should require TLS 1.2")
	}
}

func TestPublish(t *testing.T) {
	c, fake := connectedClient()

	if err := c.PublishRetained("graynotify/sources/all", []byte(`[]`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	got := fake.last()
	if got.topic != "graynotify/sources/all" || !got.retained || got.qos != 1 {
		t.Errorf("published = %+v", got)
	}

	if err := c.PublishEvent("graynotify/sources/sync", []byte(`{}`)); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}
	if fake.last().retained {
		t.Error("PublishEvent should not retain")
	}
}

func TestPublish_Validation(t *testing.T) {
	c, fake := connectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	fake.publishErr = errors.New("broker said no")
	if err := c.Publish("t", nil, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestNotConnected(t *testing.T) {
	c := newClient(testConfig())

	if c.IsConnected() {
		t.Error("new client should not be connected")
	}
	if err := c.Publish("t", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v", err)
	}
	if err := c.Subscribe("t", 0, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestSubscribeDeliversAndRecovers(t *testing.T) {
	c, fake := connectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	got := make(chan string, 3)
	err := c.Subscribe(Topics{}.CommandToggle(), 1, func(topic string, payload []byte) error {
		switch string(payload) {
		case "boom":
			panic("handler exploded")
		case "fail":
			return errors.New("bad payload")
		}
		got <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d", c.SubscriptionCount())
	}

	fake.deliver(Topics{}.CommandToggle(), []byte("ok"))
	if v := <-got; v != "ok" {
		t.Errorf("handler got %q", v)
	}

	fake.deliver(Topics{}.CommandToggle(), []byte("boom"))
	if !logger.contains("panic recovered") {
		t.Error("panic was not logged")
	}
	fake.deliver(Topics{}.CommandToggle(), []byte("fail"))
	if !logger.contains("handler returned error") {
		t.Error("handler error was not logged")
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, fake := connectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}

	fake.subscribeErr = errors.New("not authorised")
	if err := c.Subscribe("t", 0, handler); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("broker refusal error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription should not be tracked")
	}
}

func TestReconnectRestoresSubscriptionsAndStatus(t *testing.T) {
	c, fake := connectedClient()
	if err := c.Subscribe(Topics{}.AllCommands(), 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatal(err)
	}

	reconnected := make(chan struct{}, 1)
	c.SetOnConnect(func() { reconnected <- struct{}{} })

	c.handleDisconnect(errors.New("network down"))
	if c.IsConnected() {
		t.Error("client should report disconnected after connection loss")
	}

	fake.mu.Lock()
	fake.handlers = map[string]pahomqtt.MessageHandler{}
	fake.mu.Unlock()

	c.handleConnect()
	<-reconnected

	fake.mu.Lock()
	_, restored := fake.handlers[Topics{}.AllCommands()]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription was not restored on reconnect")
	}

	status := fake.last()
	var msg StatusMessage
	if err := json.Unmarshal(status.payload, &msg); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.topic != (Topics{}).SystemStatus() || !status.retained || msg.Status != StatusOnline {
		t.Errorf("status publish = %+v (%+v)", status, msg)
	}
}

func TestClosePublishesGracefulOffline(t *testing.T) {
	c, fake := connectedClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	var msg StatusMessage
	if err := json.Unmarshal(fake.last().payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != StatusOffline || msg.Reason != "graceful_shutdown" {
		t.Errorf("offline status = %+v", msg)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Error("Close should disconnect")
	}
}

func TestHealthCheck(t *testing.T) {
	c, _ := connectedClient()
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}
