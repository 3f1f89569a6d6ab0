package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	cfg := config.Default().MQTT
	cfg.Broker.ClientID = "bluerial-test"
	return cfg
}

func TestTopics_Queues(t *testing.T) {
	topics := NewTopics(testMQTTConfig().Topics)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ble commands", topics.BLECommands(), "bluerial/ble/consumer"},
		{"ble notifications", topics.BLENotifications(), "bluerial/ble/producer"},
		{"serial commands", topics.SerialCommands(), "bluerial/serial/consumer"},
		{"serial notifications", topics.SerialNotifications(), "bluerial/serial/producer"},
		{"command topic ble", topics.CommandTopic("ble"), "bluerial/ble/consumer"},
		{"command topic serial", topics.CommandTopic("serial"), "bluerial/serial/consumer"},
		{"command topic unknown", topics.CommandTopic("lora"), ""},
		{"system status", topics.SystemStatus(), "bluerial/system/status"},
		{"service health", topics.ServiceHealth("ble"), "bluerial/health/ble"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"bluerial/ble/producer", false},
		{"", true},
		{"bluerial/+/producer", true},
		{"bluerial/#", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidatePublishTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePublishTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("error = %v, want ErrInvalidTopic", err)
			}
		})
	}
}

func TestValidateSubscribeTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"bluerial/ble/consumer", false},
		{"bluerial/+/consumer", false},
		{"bluerial/#", false},
		{"#", false},
		{"", true},
		{"bluerial/#/consumer", true},
		{"bluerial/ble#", true},
		{"bluerial/b+/consumer", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateSubscribeTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubscribeTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := config.MQTTBrokerConfig{Host: "localhost", Port: 1883}
	if got := brokerURL(cfg); got != "tcp://localhost:1883" {
		t.Errorf("brokerURL() = %q, want tcp://localhost:1883", got)
	}

	cfg.TLS = true
	cfg.Port = 8883
	if got := brokerURL(cfg); got != "ssl://localhost:8883" {
		t.Errorf("brokerURL() = %q, want ssl://localhost:8883", got)
	}
}

func TestClientID(t *testing.T) {
	cfg := testMQTTConfig()
	if got := clientID(cfg); got != "bluerial-test" {
		t.Errorf("clientID() = %q, want configured id", got)
	}

	cfg.Broker.ClientID = ""
	a, b := clientID(cfg), clientID(cfg)
	if !strings.HasPrefix(a, "bluerial-") || len(a) != len("bluerial-")+8 {
		t.Errorf("clientID() = %q, want bluerial-xxxxxxxx", a)
	}
	if a == b {
		t.Errorf("generated client IDs should differ, both %q", a)
	}
}

func TestNewClient_Options(t *testing.T) {
	c := newClient(testMQTTConfig())
	if !c.announce {
		t.Error("announce = false by default, want true")
	}
	if c.ClientID() != "bluerial-test" {
		t.Errorf("ClientID() = %q, want bluerial-test", c.ClientID())
	}

	quiet := newClient(testMQTTConfig(), WithoutStatus())
	if quiet.announce {
		t.Error("announce = true with WithoutStatus")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, "bluerial-test")
	configureLWT(opts, "bluerial-test")

	if opts.ClientID != "bluerial-test" {
		t.Errorf("ClientID = %q, want bluerial-test", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q, want user", opts.Username)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v, want [tcp://localhost:1883]", opts.Servers)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.WillEnabled || opts.WillTopic != "bluerial/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%t topic:%q retained:%t", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("offline", "bluerial-test", "graceful_shutdown"), &msg); err != nil {
		t.Fatalf("statusPayload produced invalid JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "bluerial-test" || msg.Reason != "graceful_shutdown" {
		t.Errorf("statusPayload = %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("Timestamp is empty")
	}

	if strings.Contains(string(statusPayload("online", "id", "")), "reason") {
		t.Error("empty reason should be omitted")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if c.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("bluerial/ble/producer", []byte("ble-scan-started"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("bluerial/ble/consumer", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestClient_ArgumentValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", nil, 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty topic) = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a/b", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("a/b", make([]byte, maxPayloadSize+1), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(oversize) = %v, want ErrPublishFailed", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) = %v, want ErrInvalidTopic", err)
	}
}

type captureLogger struct {
	errors, warns int
}

func (l *captureLogger) Error(string, ...any) { l.errors++ }
func (l *captureLogger) Warn(string, ...any)  { l.warns++ }
func (l *captureLogger) Info(string, ...any)  {}

func TestClient_DispatchRecoversAndLogs(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	logger := &captureLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "a/b", nil)
	c.dispatch(func(string, []byte) error { return nil }, "a/b", nil)

	if logger.errors != 1 {
		t.Errorf("errors logged = %d, want 1", logger.errors)
	}
	if logger.warns != 1 {
		t.Errorf("warnings logged = %d, want 1", logger.warns)
	}
}
