package ble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// defaultCommandQueue bounds commands waiting to run.
const defaultCommandQueue = 32

// publishedEvents are the watcher events the bridge turns into notifications.
var publishedEvents = []presence.EventType{
	presence.EventStarted,
	presence.EventStopped,
	presence.EventNewDiscovery,
	presence.EventNameChanged,
	presence.EventDataChanged,
	presence.EventTimedOut,
}

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// Watcher is the part of *watcher.Watcher the bridge drives.
type Watcher interface {
	Start() error
	Stop() error
	Snapshot() []presence.Record
	SetHeartbeatTimeout(seconds int) error
	Subscribe(h watcher.Handler, types ...presence.EventType) func()
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	Watcher Watcher
	MQTT    MQTTClient

	// CommandTopic carries ble-* commands in. Required.
	CommandTopic string

	// NotifyTopic carries ble-* notifications out. Required.
	NotifyTopic string

	QoS byte

	// Filters seeds the device filter set.
	Filters []string

	// CommandQueue bounds pending commands. Default: 32.
	CommandQueue int
}

// Bridge translates between the MQTT text protocol and a presence watcher.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	watcher Watcher
	mqtt    MQTTClient
	cmdTop  string
	outTop  string
	qos     byte
	filters *Filters

	commands    chan string
	unsubscribe func()

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge validates opts and creates a bridge. Call Start to begin.
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required option is missing
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Watcher == nil {
		return nil, fmt.Errorf("watcher is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.CommandTopic == "" || opts.NotifyTopic == "" {
		return nil, fmt.Errorf("command and notify topics are required")
	}
	queue := opts.CommandQueue
	if queue <= 0 {
		queue = defaultCommandQueue
	}

	return &Bridge{
		watcher:  opts.Watcher,
		mqtt:     opts.MQTT,
		cmdTop:   opts.CommandTopic,
		outTop:   opts.NotifyTopic,
		qos:      opts.QoS,
		filters:  NewFilters(opts.Filters...),
		commands: make(chan string, queue),
		done:     make(chan struct{}),
	}, nil
}

// Filters returns the bridge's live filter set.
func (b *Bridge) Filters() *Filters {
	return b.filters
}

// Start subscribes to watcher events and to the command topic.
func (b *Bridge) Start() error {
	b.unsubscribe = b.watcher.Subscribe(b.handleEvent, publishedEvents...)

	b.wg.Add(1)
	go b.commandLoop()

	if err := b.mqtt.Subscribe(b.cmdTop, b.qos, b.handleMessage); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", b.cmdTop)
	return nil
}

// Stop unsubscribes and waits for the command worker. It does not stop
// the watcher. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(b.cmdTop); err != nil {
			b.logDebug("unsubscribe failed", "topic", b.cmdTop, "error", err)
		}
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		close(b.done)
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleMessage is the MQTT callback. It only queues the command.
func (b *Bridge) handleMessage(_ string, payload []byte) error {
	select {
	case <-b.done:
		return nil
	default:
	}

	select {
	case b.commands <- string(payload):
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (b *Bridge) commandLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case raw := <-b.commands:
			b.execute(raw)
		}
	}
}

// execute parses and runs one command. Bad commands are logged and ignored.
func (b *Bridge) execute(raw string) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		if errors.Is(err, ErrWrongNamespace) {
			b.logDebug("ignoring non-ble message", "message", raw)
			return
		}
		b.logWarn("ignoring command", "message", raw, "error", err)
		return
	}
	b.logDebug("command received", "command", cmd.Kind.String())

	switch cmd.Kind {
	case CommandStart:
		if err := b.watcher.Start(); err != nil {
			b.logError("failed to start listening", err)
		}
	case CommandStop:
		if err := b.watcher.Stop(); err != nil {
			b.logError("failed to stop listening", err)
		}
	case CommandDevices:
		b.publish(devicesMessage(b.watcher.Snapshot()))
	case CommandClear:
		b.filters.Clear()
	case CommandAdd:
		if !b.filters.Add(cmd.Filter) {
			b.logDebug("filter already present", "filter", cmd.Filter)
		}
	case CommandFilters:
		b.publish(filtersMessage(b.filters.List()))
	case CommandTimeout:
		if err := b.watcher.SetHeartbeatTimeout(cmd.Seconds); err != nil {
			b.logError("failed to set heartbeat timeout", err)
		}
	}
}

// handleEvent runs on the watcher's dispatcher goroutine.
func (b *Bridge) handleEvent(ev watcher.Event) {
	switch ev.Type {
	case presence.EventStarted:
		b.publish(scanStartedMessage())
	case presence.EventStopped:
		b.publish(scanStoppedMessage(ev.Err))
	default:
		if !b.filters.Matches(ev.Record) {
			return
		}
		if msg, ok := deviceMessage(ev); ok {
			b.publish(msg)
		}
	}
}

func (b *Bridge) publish(msg protocol.Message) {
	if err := b.mqtt.Publish(b.outTop, msg.Bytes(), b.qos, false); err != nil {
		b.logError("failed to publish notification", err)
	}
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
