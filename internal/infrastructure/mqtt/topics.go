package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
)

// TopicPrefix is the base for topics Bluerial owns outright (status).
// Command and notification queues are configurable and may live anywhere.
const TopicPrefix = "bluerial"

// Topics provides the topic names used by the Bluerial services.
//
// The four queue topics come from configuration; the status topics are
// derived from TopicPrefix.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	client.Subscribe(topics.BLECommands(), 1, handler)
type Topics struct {
	cfg config.MQTTTopicsConfig
}

// NewTopics creates a topic builder over the configured queue names.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	return Topics{cfg: cfg}
}

// =============================================================================
// Queue Topics
// =============================================================================

// BLECommands is the topic carrying ble-* commands into the BLE service.
//
// Default: bluerial/ble/consumer
func (t Topics) BLECommands() string {
	return t.cfg.BLEConsumer
}

// BLENotifications is the topic carrying ble-* notifications out.
//
// Default: bluerial/ble/producer
func (t Topics) BLENotifications() string {
	return t.cfg.BLEProducer
}

// SerialCommands is the topic carrying serial-* commands into the serial service.
//
// Default: bluerial/serial/consumer
func (t Topics) SerialCommands() string {
	return t.cfg.SerialConsumer
}

// SerialNotifications is the topic carrying serial-* notifications out.
//
// Default: bluerial/serial/producer
func (t Topics) SerialNotifications() string {
	return t.cfg.SerialProducer
}

// CommandTopic returns the command topic for a protocol namespace, or ""
// for an unknown namespace.
func (t Topics) CommandTopic(namespace string) string {
	switch namespace {
	case "ble":
		return t.BLECommands()
	case "serial":
		return t.SerialCommands()
	}
	return ""
}

// =============================================================================
// Status Topics
// =============================================================================

// SystemStatus returns the retained online/offline status topic.
//
// Example: bluerial/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ServiceHealth returns the health topic for one service.
//
// Example: bluerial/health/ble
func (Topics) ServiceHealth(service string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, service)
}

// =============================================================================
// Validation
// =============================================================================

// ValidatePublishTopic checks that topic can be published to: non-empty and
// free of wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed when publishing: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateSubscribeTopic checks that wildcards in topic are well placed:
// "+" must fill a whole level and "#" must be the whole last level.
func ValidateSubscribeTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: misplaced '#' in %q", ErrInvalidTopic, topic)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: misplaced '+' in %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
